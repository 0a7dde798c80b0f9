package job

import "testing"

func TestCreateRequest_Normalized_Defaults(t *testing.T) {
	req := CreateRequest{}
	got := req.normalized()

	if got.Args == nil || len(got.Args) != 0 {
		t.Errorf("Args = %v, want empty slice", got.Args)
	}
	if got.SparkConf == nil || len(got.SparkConf) != 0 {
		t.Errorf("SparkConf = %v, want empty map", got.SparkConf)
	}
	if got.RetryMaxAttempts != 1 {
		t.Errorf("RetryMaxAttempts = %d, want 1", got.RetryMaxAttempts)
	}
	if got.TimeoutSeconds != 7200 {
		t.Errorf("TimeoutSeconds = %d, want 7200", got.TimeoutSeconds)
	}
}

func TestRow_ToResponse_NilSlicesBecomeEmpty(t *testing.T) {
	row := Row{Name: "etl-job"}
	resp := row.ToResponse()
	if resp.Args == nil {
		t.Error("Args should not be nil in response")
	}
	if resp.SparkConf == nil {
		t.Error("SparkConf should not be nil in response")
	}
}
