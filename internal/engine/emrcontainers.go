package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwltypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/aws/aws-sdk-go-v2/service/emrcontainers"
	emrtypes "github.com/aws/aws-sdk-go-v2/service/emrcontainers/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/google/uuid"
)

// EMRContainers is the real engine adapter: it assumes the environment's
// customer_role_arn via STS and drives EMR on EKS's virtual-cluster and
// job-run APIs through the customer's own account, plus CloudWatch Logs for
// log retrieval. Only constructed when SPARKPILOT_DRY_RUN_MODE=false.
type EMRContainers struct {
	baseConfig       aws.Config
	logGroupPrefix   string
	executionRoleARN string
	releaseLabel     string
}

// NewEMRContainers loads the ambient AWS config once at startup; each call
// assumes the target environment's customer role from that base identity.
func NewEMRContainers(ctx context.Context, region, logGroupPrefix, executionRoleARN, releaseLabel string) (*EMRContainers, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading base AWS config: %w", err)
	}
	return &EMRContainers{
		baseConfig:       cfg,
		logGroupPrefix:   logGroupPrefix,
		executionRoleARN: executionRoleARN,
		releaseLabel:     releaseLabel,
	}, nil
}

// assumedConfig returns an aws.Config whose credentials are the result of
// assuming roleARN in region.
func (e *EMRContainers) assumedConfig(roleARN, region string) aws.Config {
	stsClient := sts.NewFromConfig(e.baseConfig)
	provider := stscreds.NewAssumeRoleProvider(stsClient, roleARN, func(o *stscreds.AssumeRoleOptions) {
		o.RoleSessionName = fmt.Sprintf("sparkpilot-%s", uuid.NewString()[:8])
	})
	cfg := e.baseConfig.Copy()
	cfg.Region = region
	cfg.Credentials = aws.NewCredentialsCache(provider)
	return cfg
}

func eksClusterNameFromARN(clusterARN string) (string, error) {
	const marker = "cluster/"
	idx := strings.Index(clusterARN, marker)
	if idx < 0 {
		return "", fmt.Errorf("invalid EKS cluster ARN: %q", clusterARN)
	}
	return clusterARN[idx+len(marker):], nil
}

func (e *EMRContainers) CreateVirtualCluster(ctx context.Context, env EnvContext) (string, error) {
	if env.EKSClusterARN == "" {
		return "", fmt.Errorf("missing EKS cluster ARN")
	}
	if env.EKSNamespace == "" {
		return "", fmt.Errorf("missing EKS namespace")
	}

	clusterName, err := eksClusterNameFromARN(env.EKSClusterARN)
	if err != nil {
		return "", err
	}

	client := emrcontainers.NewFromConfig(e.assumedConfig(env.CustomerRoleARN, env.Region))
	out, err := client.CreateVirtualCluster(ctx, &emrcontainers.CreateVirtualClusterInput{
		Name: aws.String(fmt.Sprintf("sparkpilot-%s", env.ID.String()[:8])),
		// Deterministic per environment, not per call: a retried
		// CreateVirtualCluster for the same environment must land on the
		// same EMR virtual cluster rather than creating a second one.
		ClientToken: aws.String(fmt.Sprintf("sparkpilot-vc-%s", env.ID)),
		ContainerProvider: &emrtypes.ContainerProvider{
			Id:   aws.String(clusterName),
			Type: emrtypes.ContainerProviderTypeEks,
			Info: &emrtypes.ContainerInfo{
				EksInfo: &emrtypes.EksInfo{Namespace: aws.String(env.EKSNamespace)},
			},
		},
		Tags: map[string]string{"sparkpilot:managed": "true"},
	})
	if err != nil {
		return "", fmt.Errorf("creating EMR virtual cluster: %w", err)
	}
	return aws.ToString(out.Id), nil
}

func (e *EMRContainers) StartJobRun(ctx context.Context, env EnvContext, job JobSpec, run RunSpec) (StartResult, error) {
	logGroup := logGroupFor(e.logGroupPrefix, env.ID)
	streamPrefix := logStreamPrefixFor(run.ID, run.Attempt)
	conf := mergedSparkConf(job.SparkConf, run.SparkConfOverrides)

	var confArgs []string
	for k, v := range conf {
		confArgs = append(confArgs, fmt.Sprintf("--conf %s=%s", k, v))
	}

	client := emrcontainers.NewFromConfig(e.assumedConfig(env.CustomerRoleARN, env.Region))
	out, err := client.StartJobRun(ctx, &emrcontainers.StartJobRunInput{
		VirtualClusterId: aws.String(env.EMRVirtualClusterID),
		Name:             aws.String(fmt.Sprintf("%s-%s", job.Name, run.ID)),
		ExecutionRoleArn: aws.String(e.executionRoleARN),
		ReleaseLabel:     aws.String(e.releaseLabel),
		JobDriver: &emrtypes.JobDriver{
			SparkSubmitJobDriver: &emrtypes.SparkSubmitJobDriver{
				EntryPoint:            aws.String(job.ArtifactURI),
				EntryPointArguments:   run.Args,
				SparkSubmitParameters: aws.String(strings.Join(confArgs, " ")),
			},
		},
		ConfigurationOverrides: &emrtypes.ConfigurationOverrides{
			MonitoringConfiguration: &emrtypes.MonitoringConfiguration{
				CloudWatchMonitoringConfiguration: &emrtypes.CloudWatchMonitoringConfiguration{
					LogGroupName:        aws.String(logGroup),
					LogStreamNamePrefix: aws.String(streamPrefix),
				},
			},
		},
		RetryPolicyConfiguration: &emrtypes.RetryPolicyConfiguration{
			MaxAttempts: aws.Int32(int32(job.RetryMaxAttempts)),
		},
	})
	if err != nil {
		return StartResult{}, fmt.Errorf("starting EMR job run: %w", err)
	}

	return StartResult{
		EngineRunID:     aws.ToString(out.Id),
		LogGroup:        logGroup,
		LogStreamPrefix: streamPrefix,
		DriverLogURI:    fmt.Sprintf("cloudwatch://%s/%s/driver", logGroup, streamPrefix),
	}, nil
}

func (e *EMRContainers) DescribeJobRun(ctx context.Context, env EnvContext, run RunSpec) (DescribeResult, error) {
	if run.CancellationRequested && run.EngineRunID == "" {
		return DescribeResult{EngineState: EngineStateCancelled}, nil
	}
	if run.EngineRunID == "" {
		return DescribeResult{EngineState: EngineStateFailed, ErrorMessage: "missing engine run id"}, nil
	}

	client := emrcontainers.NewFromConfig(e.assumedConfig(env.CustomerRoleARN, env.Region))
	out, err := client.DescribeJobRun(ctx, &emrcontainers.DescribeJobRunInput{
		VirtualClusterId: aws.String(env.EMRVirtualClusterID),
		Id:               aws.String(run.EngineRunID),
	})
	if err != nil {
		return DescribeResult{EngineState: EngineStateFailed, ErrorMessage: err.Error()}, nil
	}
	if out.JobRun == nil {
		return DescribeResult{EngineState: EngineStateFailed, ErrorMessage: "empty job run"}, nil
	}

	state := string(out.JobRun.State)
	if state == "" {
		state = EngineStateFailed
	}
	var failure string
	if out.JobRun.FailureReason != "" {
		failure = string(out.JobRun.FailureReason)
	}
	return DescribeResult{EngineState: state, ErrorMessage: failure}, nil
}

func (e *EMRContainers) CancelJobRun(ctx context.Context, env EnvContext, run RunSpec) (string, error) {
	if run.EngineRunID == "" {
		return "", nil
	}
	client := emrcontainers.NewFromConfig(e.assumedConfig(env.CustomerRoleARN, env.Region))
	_, err := client.CancelJobRun(ctx, &emrcontainers.CancelJobRunInput{
		VirtualClusterId: aws.String(env.EMRVirtualClusterID),
		Id:               aws.String(run.EngineRunID),
	})
	if err != nil {
		return "", fmt.Errorf("cancelling EMR job run %s: %w", run.EngineRunID, err)
	}
	return "", nil
}

func (e *EMRContainers) FetchLogLines(ctx context.Context, roleARN, region, logGroup, logStreamPrefix string, limit int) ([]string, error) {
	if logGroup == "" {
		return []string{}, nil
	}

	client := cloudwatchlogs.NewFromConfig(e.assumedConfig(roleARN, region))
	input := &cloudwatchlogs.FilterLogEventsInput{
		LogGroupName: aws.String(logGroup),
		Limit:        aws.Int32(int32(limit)),
	}
	if logStreamPrefix != "" {
		input.LogStreamNamePrefix = aws.String(logStreamPrefix)
	}

	out, err := client.FilterLogEvents(ctx, input)
	if err != nil {
		var rnf *cwltypes.ResourceNotFoundException
		if errors.As(err, &rnf) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("fetching cloudwatch log events for group %s: %w", logGroup, err)
	}

	lines := make([]string, 0, len(out.Events))
	for _, ev := range out.Events {
		lines = append(lines, aws.ToString(ev.Message))
	}
	return lines, nil
}
