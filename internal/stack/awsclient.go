package stack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcore"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcorecontrol"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcorecontrol/types"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// pollInterval is the delay between status checks when waiting for a
// resource to become ready.
const pollInterval = 5 * time.Second

// maxPollAttempts limits how long we wait for a resource to become ready.
const maxPollAttempts = 60

// listPageSize is the MaxResults value used when listing resources via
// the AgentCore control-plane API.
const listPageSize = 100

// realAWSClient implements registryAPI, iamAPI, secretsAPI, controlAPI,
// credentialAPI, and runtimePinger using the real AWS SDK clients.
type realAWSClient struct {
	control   *bedrockagentcorecontrol.Client
	dataplane *bedrockagentcore.Client
	ecr       *ecr.Client
	iam       *iam.Client
	secrets   *secretsmanager.Client
	cognito   *cognitoidentityprovider.Client
	logs      *cloudwatchlogs.Client
}

// NewAWSClients builds the client bundle from the default AWS config chain,
// discovering the caller's account ID via STS and storing it on cfg. The STS
// call doubles as a credential preflight so misconfiguration fails before any
// provisioning call.
func NewAWSClients(ctx context.Context, cfg *Config) (*Clients, error) {
	awsCfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	identity, err := sts.NewFromConfig(awsCfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("STS GetCallerIdentity: %w", err)
	}
	cfg.AccountID = aws.ToString(identity.Account)

	c := &realAWSClient{
		control:   bedrockagentcorecontrol.NewFromConfig(awsCfg),
		dataplane: bedrockagentcore.NewFromConfig(awsCfg),
		ecr:       ecr.NewFromConfig(awsCfg),
		iam:       iam.NewFromConfig(awsCfg),
		secrets:   secretsmanager.NewFromConfig(awsCfg),
		cognito:   cognitoidentityprovider.NewFromConfig(awsCfg),
		logs:      cloudwatchlogs.NewFromConfig(awsCfg),
	}
	return &Clients{
		Registry:    c,
		IAM:         c,
		Secrets:     c,
		Control:     c,
		Credentials: c,
		Pinger:      c,
	}, nil
}

// isConflictError returns true if the error indicates a 409 Conflict (resource
// already exists).
func isConflictError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "ConflictException")
}

// isNotFound returns true if the error is an AgentCore
// ResourceNotFoundException.
func isNotFound(err error) bool {
	var nf *types.ResourceNotFoundException
	return errors.As(err, &nf)
}

// ---------- registryAPI implementation ----------

// registryLifecyclePolicy retains the most recent images and expires the rest
// so the repository does not grow without bound.
const registryLifecyclePolicy = `{
  "rules": [
    {
      "rulePriority": 1,
      "description": "Keep the last 10 images",
      "selection": {
        "tagStatus": "any",
        "countType": "imageCountMoreThan",
        "countNumber": 10
      },
      "action": { "type": "expire" }
    }
  ]
}`

// EnsureRepository creates the ECR repository with scan-on-push and the
// retention lifecycle policy, adopting an existing repository with the same
// name.
func (c *realAWSClient) EnsureRepository(
	ctx context.Context, name string, tags map[string]string,
) (string, string, error) {
	out, err := c.ecr.CreateRepository(ctx, &ecr.CreateRepositoryInput{
		RepositoryName:     aws.String(name),
		ImageTagMutability: ecrtypes.ImageTagMutabilityMutable,
		ImageScanningConfiguration: &ecrtypes.ImageScanningConfiguration{
			ScanOnPush: true,
		},
		Tags: ecrTags(tags),
	})

	var uri, arn string
	switch {
	case err == nil:
		uri = aws.ToString(out.Repository.RepositoryUri)
		arn = aws.ToString(out.Repository.RepositoryArn)
	case isRepositoryExists(err):
		log.Printf("stack: repository %q already exists, adopting", name)
		uri, arn, err = c.findRepository(ctx, name)
		if err != nil {
			return "", "", fmt.Errorf("CreateRepository %q (adopt): %w", name, err)
		}
	default:
		return "", "", fmt.Errorf("CreateRepository %q: %w", name, err)
	}

	// Re-applying the lifecycle policy is idempotent, so adoption gets the
	// same retention behavior as a fresh create.
	_, err = c.ecr.PutLifecyclePolicy(ctx, &ecr.PutLifecyclePolicyInput{
		RepositoryName:      aws.String(name),
		LifecyclePolicyText: aws.String(registryLifecyclePolicy),
	})
	if err != nil {
		return uri, arn, fmt.Errorf("PutLifecyclePolicy %q: %w", name, err)
	}

	return uri, arn, nil
}

// DeleteRepository force-deletes the repository including any images.
func (c *realAWSClient) DeleteRepository(ctx context.Context, name string) error {
	_, err := c.ecr.DeleteRepository(ctx, &ecr.DeleteRepositoryInput{
		RepositoryName: aws.String(name),
		Force:          true,
	})
	if err != nil && !isRepositoryNotFound(err) {
		return fmt.Errorf("DeleteRepository %q: %w", name, err)
	}
	return nil
}

// CheckRepository returns the health status of the repository.
func (c *realAWSClient) CheckRepository(ctx context.Context, name string) (string, error) {
	_, _, err := c.findRepository(ctx, name)
	if err != nil {
		if isRepositoryNotFound(err) {
			return StatusMissing, nil
		}
		return StatusUnhealthy, err
	}
	return StatusHealthy, nil
}

// findRepository looks up an existing repository's URI and ARN.
func (c *realAWSClient) findRepository(ctx context.Context, name string) (uri, arn string, err error) {
	out, err := c.ecr.DescribeRepositories(ctx, &ecr.DescribeRepositoriesInput{
		RepositoryNames: []string{name},
	})
	if err != nil {
		return "", "", err
	}
	if len(out.Repositories) == 0 {
		return "", "", fmt.Errorf("repository %q not found", name)
	}
	repo := out.Repositories[0]
	return aws.ToString(repo.RepositoryUri), aws.ToString(repo.RepositoryArn), nil
}

// isRepositoryExists returns true for the ECR already-exists error.
func isRepositoryExists(err error) bool {
	var exists *ecrtypes.RepositoryAlreadyExistsException
	return errors.As(err, &exists)
}

// isRepositoryNotFound returns true for the ECR not-found error.
func isRepositoryNotFound(err error) bool {
	var nf *ecrtypes.RepositoryNotFoundException
	return errors.As(err, &nf)
}

// ecrTags converts a tag map to the ECR SDK tag slice in sorted key order.
func ecrTags(tags map[string]string) []ecrtypes.Tag {
	if len(tags) == 0 {
		return nil
	}
	out := make([]ecrtypes.Tag, 0, len(tags))
	for _, k := range sortedKeys(tags) {
		out = append(out, ecrtypes.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return out
}

// ---------- iamAPI implementation ----------

// EnsureRole creates the IAM role with its trust policy and inline policies,
// adopting an existing role with the same name. Inline policies are always
// re-put so policy statement changes take effect on redeploy.
func (c *realAWSClient) EnsureRole(
	ctx context.Context, name, trustPolicy string, policies []NamedPolicy, tags map[string]string,
) (string, error) {
	out, err := c.iam.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 aws.String(name),
		AssumeRolePolicyDocument: aws.String(trustPolicy),
		Tags:                     iamTags(tags),
	})

	var arn string
	switch {
	case err == nil:
		arn = aws.ToString(out.Role.Arn)
	case isRoleExists(err):
		log.Printf("stack: role %q already exists, adopting", name)
		getOut, getErr := c.iam.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(name)})
		if getErr != nil {
			return "", fmt.Errorf("CreateRole %q (adopt): %w", name, getErr)
		}
		arn = aws.ToString(getOut.Role.Arn)
	default:
		return "", fmt.Errorf("CreateRole %q: %w", name, err)
	}

	for _, p := range policies {
		_, err := c.iam.PutRolePolicy(ctx, &iam.PutRolePolicyInput{
			RoleName:       aws.String(name),
			PolicyName:     aws.String(p.Name),
			PolicyDocument: aws.String(p.Document),
		})
		if err != nil {
			return arn, fmt.Errorf("PutRolePolicy %q on role %q: %w", p.Name, name, err)
		}
	}

	return arn, nil
}

// DeleteRole removes the inline policies and then the role itself.
func (c *realAWSClient) DeleteRole(ctx context.Context, name string, policyNames []string) error {
	for _, p := range policyNames {
		_, err := c.iam.DeleteRolePolicy(ctx, &iam.DeleteRolePolicyInput{
			RoleName:   aws.String(name),
			PolicyName: aws.String(p),
		})
		if err != nil && !isRoleNotFound(err) {
			return fmt.Errorf("DeleteRolePolicy %q on role %q: %w", p, name, err)
		}
	}
	_, err := c.iam.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: aws.String(name)})
	if err != nil && !isRoleNotFound(err) {
		return fmt.Errorf("DeleteRole %q: %w", name, err)
	}
	return nil
}

// CheckRole returns the health status of the role.
func (c *realAWSClient) CheckRole(ctx context.Context, name string) (string, error) {
	_, err := c.iam.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(name)})
	if err != nil {
		if isRoleNotFound(err) {
			return StatusMissing, nil
		}
		return StatusUnhealthy, fmt.Errorf("GetRole %q: %w", name, err)
	}
	return StatusHealthy, nil
}

// isRoleExists returns true for the IAM already-exists error.
func isRoleExists(err error) bool {
	var exists *iamtypes.EntityAlreadyExistsException
	return errors.As(err, &exists)
}

// isRoleNotFound returns true for the IAM no-such-entity error.
func isRoleNotFound(err error) bool {
	var nf *iamtypes.NoSuchEntityException
	return errors.As(err, &nf)
}

// iamTags converts a tag map to the IAM SDK tag slice in sorted key order.
func iamTags(tags map[string]string) []iamtypes.Tag {
	if len(tags) == 0 {
		return nil
	}
	out := make([]iamtypes.Tag, 0, len(tags))
	for _, k := range sortedKeys(tags) {
		out = append(out, iamtypes.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return out
}

// ---------- secretsAPI implementation ----------

// EnsureSecret creates an empty placeholder secret, adopting an existing one.
// Declaring a real value in source is deliberately unsupported.
func (c *realAWSClient) EnsureSecret(
	ctx context.Context, name, description string, tags map[string]string,
) (string, error) {
	out, err := c.secrets.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(name),
		Description:  aws.String(description),
		SecretString: aws.String(""),
		Tags:         smTags(tags),
	})
	if err == nil {
		return aws.ToString(out.ARN), nil
	}
	if isSecretExists(err) {
		log.Printf("stack: secret %q already exists, adopting", name)
		descOut, descErr := c.secrets.DescribeSecret(ctx, &secretsmanager.DescribeSecretInput{
			SecretId: aws.String(name),
		})
		if descErr != nil {
			return "", fmt.Errorf("CreateSecret %q (adopt): %w", name, descErr)
		}
		return aws.ToString(descOut.ARN), nil
	}
	return "", fmt.Errorf("CreateSecret %q: %w", name, err)
}

// DeleteSecret removes the secret without a recovery window.
func (c *realAWSClient) DeleteSecret(ctx context.Context, name string) error {
	_, err := c.secrets.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:                   aws.String(name),
		ForceDeleteWithoutRecovery: aws.Bool(true),
	})
	if err != nil && !isSecretNotFound(err) {
		return fmt.Errorf("DeleteSecret %q: %w", name, err)
	}
	return nil
}

// CheckSecret returns the health status of the secret.
func (c *realAWSClient) CheckSecret(ctx context.Context, name string) (string, error) {
	_, err := c.secrets.DescribeSecret(ctx, &secretsmanager.DescribeSecretInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		if isSecretNotFound(err) {
			return StatusMissing, nil
		}
		return StatusUnhealthy, fmt.Errorf("DescribeSecret %q: %w", name, err)
	}
	return StatusHealthy, nil
}

// isSecretExists returns true for the Secrets Manager already-exists error.
func isSecretExists(err error) bool {
	var exists *smtypes.ResourceExistsException
	return errors.As(err, &exists)
}

// isSecretNotFound returns true for the Secrets Manager not-found error.
func isSecretNotFound(err error) bool {
	var nf *smtypes.ResourceNotFoundException
	return errors.As(err, &nf)
}

// smTags converts a tag map to the Secrets Manager SDK tag slice in sorted
// key order.
func smTags(tags map[string]string) []smtypes.Tag {
	if len(tags) == 0 {
		return nil
	}
	out := make([]smtypes.Tag, 0, len(tags))
	for _, k := range sortedKeys(tags) {
		out = append(out, smtypes.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return out
}

// ---------- controlAPI implementation: runtime ----------

// CreateRuntime provisions an AgentCore runtime and polls until it reaches
// READY status. On conflict (409), adopts the existing runtime.
func (c *realAWSClient) CreateRuntime(
	ctx context.Context, name string, spec RuntimeSpec,
) (string, string, error) {
	input := &bedrockagentcorecontrol.CreateAgentRuntimeInput{
		AgentRuntimeName:     aws.String(name),
		RoleArn:              aws.String(spec.RoleARN),
		AgentRuntimeArtifact: containerArtifact(spec.ImageRef),
		NetworkConfiguration: &types.NetworkConfiguration{
			NetworkMode: types.NetworkModePublic,
		},
		ProtocolConfiguration: &types.ProtocolConfiguration{
			ServerProtocol: serverProtocol(spec.Protocol),
		},
	}
	if len(spec.Env) > 0 {
		input.EnvironmentVariables = spec.Env
	}
	if spec.Authorizer != nil {
		input.AuthorizerConfiguration = jwtAuthorizerConfig(spec.Authorizer)
	}
	if len(spec.Tags) > 0 {
		input.Tags = spec.Tags
	}

	out, err := c.control.CreateAgentRuntime(ctx, input)
	if err != nil {
		if isConflictError(err) {
			log.Printf("stack: runtime %q already exists, adopting", name)
			return c.findRuntimeByName(ctx, name)
		}
		return "", "", fmt.Errorf("CreateAgentRuntime %q: %w", name, err)
	}

	id := aws.ToString(out.AgentRuntimeId)
	arn := aws.ToString(out.AgentRuntimeArn)
	if err := c.waitForRuntimeReady(ctx, id); err != nil {
		return id, arn, fmt.Errorf("runtime %q created but not ready: %w", name, err)
	}
	return id, arn, nil
}

// UpdateRuntime updates an existing runtime and polls until it reaches READY
// status.
func (c *realAWSClient) UpdateRuntime(ctx context.Context, id string, spec RuntimeSpec) error {
	input := &bedrockagentcorecontrol.UpdateAgentRuntimeInput{
		AgentRuntimeId:       aws.String(id),
		RoleArn:              aws.String(spec.RoleARN),
		AgentRuntimeArtifact: containerArtifact(spec.ImageRef),
		NetworkConfiguration: &types.NetworkConfiguration{
			NetworkMode: types.NetworkModePublic,
		},
		ProtocolConfiguration: &types.ProtocolConfiguration{
			ServerProtocol: serverProtocol(spec.Protocol),
		},
	}
	if len(spec.Env) > 0 {
		input.EnvironmentVariables = spec.Env
	}
	if spec.Authorizer != nil {
		input.AuthorizerConfiguration = jwtAuthorizerConfig(spec.Authorizer)
	}
	if _, err := c.control.UpdateAgentRuntime(ctx, input); err != nil {
		return fmt.Errorf("UpdateAgentRuntime %q: %w", id, err)
	}
	if err := c.waitForRuntimeReady(ctx, id); err != nil {
		return fmt.Errorf("runtime %q updated but not ready: %w", id, err)
	}
	return nil
}

// DeleteRuntime removes the runtime, tolerating already-deleted.
func (c *realAWSClient) DeleteRuntime(ctx context.Context, id string) error {
	_, err := c.control.DeleteAgentRuntime(ctx, &bedrockagentcorecontrol.DeleteAgentRuntimeInput{
		AgentRuntimeId: aws.String(id),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("DeleteAgentRuntime %q: %w", id, err)
	}
	return nil
}

// CheckRuntime returns the health status of the runtime.
func (c *realAWSClient) CheckRuntime(ctx context.Context, id string) (string, error) {
	out, err := c.control.GetAgentRuntime(ctx, &bedrockagentcorecontrol.GetAgentRuntimeInput{
		AgentRuntimeId: aws.String(id),
	})
	if err != nil {
		if isNotFound(err) {
			return StatusMissing, nil
		}
		return StatusUnhealthy, fmt.Errorf("GetAgentRuntime %q: %w", id, err)
	}
	if out.Status == types.AgentRuntimeStatusReady {
		return StatusHealthy, nil
	}
	return StatusUnhealthy, nil
}

// findRuntimeByName lists runtimes and returns the ID and ARN of one matching
// name.
func (c *realAWSClient) findRuntimeByName(ctx context.Context, name string) (string, string, error) {
	out, err := c.control.ListAgentRuntimes(ctx, &bedrockagentcorecontrol.ListAgentRuntimesInput{
		MaxResults: aws.Int32(listPageSize),
	})
	if err != nil {
		return "", "", err
	}
	for _, rt := range out.AgentRuntimes {
		if aws.ToString(rt.AgentRuntimeName) == name {
			return aws.ToString(rt.AgentRuntimeId), aws.ToString(rt.AgentRuntimeArn), nil
		}
	}
	return "", "", fmt.Errorf("runtime %q not found", name)
}

// waitForRuntimeReady polls GetAgentRuntime until the status is READY or a
// terminal failure state.
func (c *realAWSClient) waitForRuntimeReady(ctx context.Context, id string) error {
	for range maxPollAttempts {
		out, err := c.control.GetAgentRuntime(ctx, &bedrockagentcorecontrol.GetAgentRuntimeInput{
			AgentRuntimeId: aws.String(id),
		})
		if err != nil {
			return fmt.Errorf("polling runtime %q: %w", id, err)
		}
		switch out.Status {
		case types.AgentRuntimeStatusReady:
			return nil
		case types.AgentRuntimeStatusCreateFailed, types.AgentRuntimeStatusUpdateFailed:
			reason := ""
			if out.FailureReason != nil {
				reason = ": " + *out.FailureReason
			}
			return fmt.Errorf("runtime %q entered status %s%s", id, out.Status, reason)
		case types.AgentRuntimeStatusCreating,
			types.AgentRuntimeStatusUpdating,
			types.AgentRuntimeStatusDeleting:
			// Transitional, keep polling.
		}
		time.Sleep(pollInterval)
	}
	return fmt.Errorf("runtime %q did not become ready after %d attempts", id, maxPollAttempts)
}

// containerArtifact returns the runtime artifact referencing a container
// image.
func containerArtifact(imageRef string) types.AgentRuntimeArtifact {
	return &types.AgentRuntimeArtifactMemberContainerConfiguration{
		Value: types.ContainerConfiguration{
			ContainerUri: aws.String(imageRef),
		},
	}
}

// serverProtocol maps a profile protocol to the SDK enum.
func serverProtocol(protocol string) types.ServerProtocol {
	if protocol == ProtocolMCP {
		return types.ServerProtocolMcp
	}
	return types.ServerProtocolHttp
}

// jwtAuthorizerConfig builds a custom JWT authorizer configuration.
func jwtAuthorizerConfig(a *JWTAuthorizer) types.AuthorizerConfiguration {
	return &types.AuthorizerConfigurationMemberCustomJWTAuthorizer{
		Value: types.CustomJWTAuthorizerConfiguration{
			DiscoveryUrl:   aws.String(a.DiscoveryURL),
			AllowedClients: a.AllowedClients,
		},
	}
}

// ---------- controlAPI implementation: memory ----------

// CreateMemory provisions a memory resource and polls until it reaches ACTIVE
// status. If a memory with the same name already exists, it is adopted.
func (c *realAWSClient) CreateMemory(
	ctx context.Context, name string, spec MemorySpec,
) (string, string, error) {
	input := &bedrockagentcorecontrol.CreateMemoryInput{
		Name:                aws.String(name),
		EventExpiryDuration: aws.Int32(spec.EventExpiryDays),
		MemoryStrategies:    memoryStrategyInputs(spec.Strategies),
	}
	if spec.RoleARN != "" {
		input.MemoryExecutionRoleArn = aws.String(spec.RoleARN)
	}
	if len(spec.Tags) > 0 {
		input.Tags = spec.Tags
	}

	out, err := c.control.CreateMemory(ctx, input)
	if err != nil {
		if isMemoryAlreadyExists(err) {
			log.Printf("stack: memory %q already exists, adopting", name)
			return c.findMemoryByName(ctx, name)
		}
		return "", "", fmt.Errorf("CreateMemory %q: %w", name, err)
	}

	id := aws.ToString(out.Memory.Id)
	arn := aws.ToString(out.Memory.Arn)
	if err := c.waitForMemoryActive(ctx, id); err != nil {
		return id, arn, fmt.Errorf("memory %q created but not active: %w", name, err)
	}
	return id, arn, nil
}

// DeleteMemory removes the memory resource, tolerating already-deleted.
func (c *realAWSClient) DeleteMemory(ctx context.Context, id string) error {
	_, err := c.control.DeleteMemory(ctx, &bedrockagentcorecontrol.DeleteMemoryInput{
		MemoryId: aws.String(id),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("DeleteMemory %q: %w", id, err)
	}
	return nil
}

// CheckMemory returns the health status of the memory resource.
func (c *realAWSClient) CheckMemory(ctx context.Context, id string) (string, error) {
	out, err := c.control.GetMemory(ctx, &bedrockagentcorecontrol.GetMemoryInput{
		MemoryId: aws.String(id),
	})
	if err != nil {
		if isNotFound(err) {
			return StatusMissing, nil
		}
		return StatusUnhealthy, fmt.Errorf("GetMemory %q: %w", id, err)
	}
	if out.Memory != nil && out.Memory.Status == types.MemoryStatusActive {
		return StatusHealthy, nil
	}
	return StatusUnhealthy, nil
}

// isMemoryAlreadyExists checks for the "already exists" validation error
// returned by CreateMemory (unlike other resources that return
// ConflictException).
func isMemoryAlreadyExists(err error) bool {
	return err != nil && (isConflictError(err) || strings.Contains(err.Error(), "already exists"))
}

// findMemoryByName lists memories and returns the ID and ARN of one matching
// name, waiting for it to reach ACTIVE status. Memory IDs include the name as
// a prefix; memories being deleted cannot be adopted.
func (c *realAWSClient) findMemoryByName(ctx context.Context, name string) (string, string, error) {
	out, err := c.control.ListMemories(ctx, &bedrockagentcorecontrol.ListMemoriesInput{
		MaxResults: aws.Int32(listPageSize),
	})
	if err != nil {
		return "", "", err
	}
	for _, m := range out.Memories {
		id := aws.ToString(m.Id)
		if strings.HasPrefix(id, name) && m.Status != types.MemoryStatusDeleting {
			if err := c.waitForMemoryActive(ctx, id); err != nil {
				return id, aws.ToString(m.Arn), err
			}
			return id, aws.ToString(m.Arn), nil
		}
	}
	return "", "", fmt.Errorf("memory %q not found", name)
}

// waitForMemoryActive polls GetMemory until the status is ACTIVE or a
// terminal failure state.
func (c *realAWSClient) waitForMemoryActive(ctx context.Context, id string) error {
	for range maxPollAttempts {
		out, err := c.control.GetMemory(ctx, &bedrockagentcorecontrol.GetMemoryInput{
			MemoryId: aws.String(id),
		})
		if err != nil {
			return fmt.Errorf("polling memory %q: %w", id, err)
		}
		if out.Memory == nil {
			return fmt.Errorf("memory %q: nil response", id)
		}
		switch out.Memory.Status {
		case types.MemoryStatusActive:
			return nil
		case types.MemoryStatusFailed:
			return fmt.Errorf("memory %q entered status FAILED", id)
		case types.MemoryStatusDeleting:
			return fmt.Errorf("memory %q is being deleted", id)
		case types.MemoryStatusCreating:
			// Transitional, keep polling.
		}
		time.Sleep(pollInterval)
	}
	return fmt.Errorf("memory %q did not become active after %d attempts", id, maxPollAttempts)
}

// memoryStrategyInputs maps the configured strategies to SDK strategy inputs.
func memoryStrategyInputs(strategies []MemoryStrategy) []types.MemoryStrategyInput {
	result := make([]types.MemoryStrategyInput, 0, len(strategies))
	for _, s := range strategies {
		if si := memoryStrategyInput(s); si != nil {
			result = append(result, si)
		}
	}
	return result
}

// memoryStrategyInput maps one strategy to its SDK union member.
func memoryStrategyInput(s MemoryStrategy) types.MemoryStrategyInput {
	switch s.Kind {
	case StrategyUserPreference:
		return &types.MemoryStrategyInputMemberUserPreferenceMemoryStrategy{
			Value: types.UserPreferenceMemoryStrategyInput{
				Name:       aws.String(s.Name),
				Namespaces: s.Namespaces,
			},
		}
	case StrategySemantic:
		return &types.MemoryStrategyInputMemberSemanticMemoryStrategy{
			Value: types.SemanticMemoryStrategyInput{
				Name:       aws.String(s.Name),
				Namespaces: s.Namespaces,
			},
		}
	case StrategySummarization:
		return &types.MemoryStrategyInputMemberSummaryMemoryStrategy{
			Value: types.SummaryMemoryStrategyInput{
				Name:       aws.String(s.Name),
				Namespaces: s.Namespaces,
			},
		}
	default:
		return nil
	}
}

// ---------- controlAPI implementation: gateway ----------

// CreateGateway provisions the gateway and polls until it becomes ready. On
// conflict, adopts the existing gateway.
func (c *realAWSClient) CreateGateway(
	ctx context.Context, name string, spec GatewaySpec,
) (string, string, string, error) {
	input := &bedrockagentcorecontrol.CreateGatewayInput{
		Name:           aws.String(name),
		RoleArn:        aws.String(spec.RoleARN),
		ProtocolType:   types.GatewayProtocolTypeMcp,
		AuthorizerType: gatewayAuthorizerType(spec.Authorizer),
	}
	if spec.Authorizer == GatewayAuthJWT && spec.JWT != nil {
		input.AuthorizerConfiguration = jwtAuthorizerConfig(spec.JWT)
	}
	if len(spec.Tags) > 0 {
		input.Tags = spec.Tags
	}

	out, err := c.control.CreateGateway(ctx, input)
	if err != nil {
		if isConflictError(err) {
			log.Printf("stack: gateway %q already exists, adopting", name)
			return c.findGatewayByName(ctx, name)
		}
		return "", "", "", fmt.Errorf("CreateGateway %q: %w", name, err)
	}

	id := aws.ToString(out.GatewayId)
	arn := aws.ToString(out.GatewayArn)
	url := aws.ToString(out.GatewayUrl)
	if err := c.waitForGatewayReady(ctx, id); err != nil {
		return id, arn, url, fmt.Errorf("gateway %q created but not ready: %w", name, err)
	}
	return id, arn, url, nil
}

// DeleteGateway removes the gateway, retrying while associated targets finish
// draining.
func (c *realAWSClient) DeleteGateway(ctx context.Context, id string) error {
	for range maxPollAttempts {
		_, err := c.control.DeleteGateway(ctx, &bedrockagentcorecontrol.DeleteGatewayInput{
			GatewayIdentifier: aws.String(id),
		})
		if err == nil || isNotFound(err) {
			return nil
		}
		if !isConflictError(err) {
			return fmt.Errorf("DeleteGateway %q: %w", id, err)
		}
		log.Printf("stack: gateway %q still has targets draining, retrying", id)
		time.Sleep(pollInterval)
	}
	return fmt.Errorf("DeleteGateway %q: targets still draining after %d attempts", id, maxPollAttempts)
}

// CheckGateway returns the health status of the gateway.
func (c *realAWSClient) CheckGateway(ctx context.Context, id string) (string, error) {
	out, err := c.control.GetGateway(ctx, &bedrockagentcorecontrol.GetGatewayInput{
		GatewayIdentifier: aws.String(id),
	})
	if err != nil {
		if isNotFound(err) {
			return StatusMissing, nil
		}
		return StatusUnhealthy, fmt.Errorf("GetGateway %q: %w", id, err)
	}
	if out.Status == types.GatewayStatusReady {
		return StatusHealthy, nil
	}
	return StatusUnhealthy, nil
}

// findGatewayByName lists gateways and returns the ID, ARN, and URL of one
// matching name.
func (c *realAWSClient) findGatewayByName(ctx context.Context, name string) (string, string, string, error) {
	out, err := c.control.ListGateways(ctx, &bedrockagentcorecontrol.ListGatewaysInput{
		MaxResults: aws.Int32(listPageSize),
	})
	if err != nil {
		return "", "", "", err
	}
	for _, gw := range out.Items {
		if aws.ToString(gw.Name) == name {
			id := aws.ToString(gw.GatewayId)
			detail, getErr := c.control.GetGateway(ctx, &bedrockagentcorecontrol.GetGatewayInput{
				GatewayIdentifier: aws.String(id),
			})
			if getErr != nil {
				return id, "", "", getErr
			}
			return id, aws.ToString(detail.GatewayArn), aws.ToString(detail.GatewayUrl), nil
		}
	}
	return "", "", "", fmt.Errorf("gateway %q not found", name)
}

// waitForGatewayReady polls GetGateway until the status is READY or a
// terminal failure state.
func (c *realAWSClient) waitForGatewayReady(ctx context.Context, id string) error {
	for range maxPollAttempts {
		out, err := c.control.GetGateway(ctx, &bedrockagentcorecontrol.GetGatewayInput{
			GatewayIdentifier: aws.String(id),
		})
		if err != nil {
			return fmt.Errorf("polling gateway %q: %w", id, err)
		}
		switch out.Status {
		case types.GatewayStatusReady:
			return nil
		case types.GatewayStatusFailed:
			return fmt.Errorf("gateway %q entered status FAILED", id)
		case types.GatewayStatusCreating,
			types.GatewayStatusUpdating,
			types.GatewayStatusUpdateUnsuccessful,
			types.GatewayStatusDeleting:
			// Transitional, keep polling.
		}
		time.Sleep(pollInterval)
	}
	return fmt.Errorf("gateway %q did not become ready after %d attempts", id, maxPollAttempts)
}

// gatewayAuthorizerType maps a profile authorizer mode to the SDK enum.
func gatewayAuthorizerType(mode string) types.AuthorizerType {
	if mode == GatewayAuthJWT {
		return types.AuthorizerTypeCustomJwt
	}
	return types.AuthorizerTypeNone
}

// ---------- controlAPI implementation: gateway target ----------

// CreateTarget provisions a gateway target pointing at the runtime endpoint
// and polls until it leaves CREATING. On conflict, adopts the existing
// target.
func (c *realAWSClient) CreateTarget(
	ctx context.Context, gatewayID, name string, spec TargetSpec,
) (string, error) {
	input := &bedrockagentcorecontrol.CreateGatewayTargetInput{
		GatewayIdentifier: aws.String(gatewayID),
		Name:              aws.String(name),
		TargetConfiguration: &types.TargetConfigurationMemberMcp{
			Value: &types.McpTargetConfigurationMemberMcpServer{
				Value: types.McpServerTargetConfiguration{
					Endpoint: aws.String(spec.EndpointURL),
				},
			},
		},
		CredentialProviderConfigurations: targetCredentialConfigs(spec.Credential),
	}

	out, err := c.control.CreateGatewayTarget(ctx, input)
	if err != nil {
		if isConflictError(err) {
			log.Printf("stack: gateway target %q already exists, adopting", name)
			return c.findTargetByName(ctx, gatewayID, name)
		}
		return "", fmt.Errorf("CreateGatewayTarget %q: %w", name, err)
	}

	targetID := aws.ToString(out.TargetId)
	if err := c.waitForTargetReady(ctx, gatewayID, targetID); err != nil {
		return targetID, fmt.Errorf("target %q created but not ready: %w", name, err)
	}
	return targetID, nil
}

// DeleteTarget removes the gateway target, tolerating already-deleted.
func (c *realAWSClient) DeleteTarget(ctx context.Context, gatewayID, targetID string) error {
	_, err := c.control.DeleteGatewayTarget(ctx, &bedrockagentcorecontrol.DeleteGatewayTargetInput{
		GatewayIdentifier: aws.String(gatewayID),
		TargetId:          aws.String(targetID),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("DeleteGatewayTarget %q on gateway %q: %w", targetID, gatewayID, err)
	}
	return nil
}

// CheckTarget returns the health status of the gateway target.
func (c *realAWSClient) CheckTarget(ctx context.Context, gatewayID, targetID string) (string, error) {
	out, err := c.control.GetGatewayTarget(ctx, &bedrockagentcorecontrol.GetGatewayTargetInput{
		GatewayIdentifier: aws.String(gatewayID),
		TargetId:          aws.String(targetID),
	})
	if err != nil {
		if isNotFound(err) {
			return StatusMissing, nil
		}
		return StatusUnhealthy, fmt.Errorf("GetGatewayTarget %q: %w", targetID, err)
	}
	if out.Status == types.TargetStatusReady {
		return StatusHealthy, nil
	}
	return StatusUnhealthy, nil
}

// findTargetByName lists gateway targets and returns the ID of one matching
// name.
func (c *realAWSClient) findTargetByName(ctx context.Context, gatewayID, name string) (string, error) {
	out, err := c.control.ListGatewayTargets(ctx, &bedrockagentcorecontrol.ListGatewayTargetsInput{
		GatewayIdentifier: aws.String(gatewayID),
		MaxResults:        aws.Int32(listPageSize),
	})
	if err != nil {
		return "", err
	}
	for _, t := range out.Items {
		if aws.ToString(t.Name) == name {
			return aws.ToString(t.TargetId), nil
		}
	}
	return "", fmt.Errorf("gateway target %q not found", name)
}

// waitForTargetReady polls GetGatewayTarget until the target leaves CREATING
// state.
func (c *realAWSClient) waitForTargetReady(ctx context.Context, gatewayID, targetID string) error {
	for range maxPollAttempts {
		out, err := c.control.GetGatewayTarget(ctx, &bedrockagentcorecontrol.GetGatewayTargetInput{
			GatewayIdentifier: aws.String(gatewayID),
			TargetId:          aws.String(targetID),
		})
		if err != nil {
			return fmt.Errorf("polling target %q: %w", targetID, err)
		}
		switch out.Status {
		case types.TargetStatusReady:
			return nil
		case types.TargetStatusFailed:
			return fmt.Errorf("target %q entered status FAILED", targetID)
		default:
			// Transitional, keep polling.
		}
		time.Sleep(pollInterval)
	}
	return fmt.Errorf("target %q did not become ready after %d attempts", targetID, maxPollAttempts)
}

// targetCredentialConfigs builds the credential provider configurations for a
// gateway target. The OAuth profile references the provisioned credential
// provider handle; otherwise the target authenticates with the gateway's IAM
// role.
func targetCredentialConfigs(cred *OAuthTargetCredential) []types.CredentialProviderConfiguration {
	if cred == nil {
		return []types.CredentialProviderConfiguration{
			{CredentialProviderType: types.CredentialProviderTypeGatewayIamRole},
		}
	}
	return []types.CredentialProviderConfiguration{
		{
			CredentialProviderType: types.CredentialProviderTypeOauth,
			CredentialProvider: &types.CredentialProviderMemberOauthCredentialProvider{
				Value: types.OAuthCredentialProvider{
					ProviderArn: aws.String(cred.ProviderARN),
					Scopes:      cred.Scopes,
				},
			},
		},
	}
}

// ---------- controlAPI implementation: observability ----------

// EnsureLogGroup creates the CloudWatch log group if it does not already
// exist.
func (c *realAWSClient) EnsureLogGroup(ctx context.Context, name string) error {
	_, err := c.logs.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(name),
	})
	if err != nil {
		if strings.Contains(err.Error(), "ResourceAlreadyExistsException") {
			return nil
		}
		return fmt.Errorf("create log group %q: %w", name, err)
	}
	log.Printf("stack: created CloudWatch log group %s", name)
	return nil
}

// ---------- credentialAPI implementation ----------

// DescribeClientSecret looks up the app client secret from the identity pool.
// The secret is passed straight through to the credential-service registration
// call and never logged or published.
func (c *realAWSClient) DescribeClientSecret(
	ctx context.Context, userPoolID, clientID string,
) (string, error) {
	out, err := c.cognito.DescribeUserPoolClient(ctx, &cognitoidentityprovider.DescribeUserPoolClientInput{
		UserPoolId: aws.String(userPoolID),
		ClientId:   aws.String(clientID),
	})
	if err != nil {
		return "", fmt.Errorf("DescribeUserPoolClient %q: %w", clientID, err)
	}
	if out.UserPoolClient == nil || aws.ToString(out.UserPoolClient.ClientSecret) == "" {
		return "", fmt.Errorf("user pool client %q has no client secret", clientID)
	}
	return aws.ToString(out.UserPoolClient.ClientSecret), nil
}

// CreateProvider registers an OAuth2 client-credentials provider with the
// credential service in a single atomic call.
func (c *realAWSClient) CreateProvider(
	ctx context.Context, name, discoveryURL, clientID, clientSecret string,
) (string, error) {
	out, err := c.control.CreateOauth2CredentialProvider(ctx,
		&bedrockagentcorecontrol.CreateOauth2CredentialProviderInput{
			Name:                     aws.String(name),
			CredentialProviderVendor: types.CredentialProviderVendorTypeCustomOauth2,
			Oauth2ProviderConfigInput: &types.Oauth2ProviderConfigInputMemberCustomOauth2ProviderConfig{
				Value: types.CustomOauth2ProviderConfigInput{
					OauthDiscovery: &types.Oauth2DiscoveryMemberDiscoveryUrl{
						Value: discoveryURL,
					},
					ClientId:     aws.String(clientID),
					ClientSecret: aws.String(clientSecret),
				},
			},
		})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.CredentialProviderArn), nil
}

// GetProvider returns the ARN of an existing credential provider.
func (c *realAWSClient) GetProvider(ctx context.Context, name string) (string, error) {
	out, err := c.control.GetOauth2CredentialProvider(ctx,
		&bedrockagentcorecontrol.GetOauth2CredentialProviderInput{
			Name: aws.String(name),
		})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.CredentialProviderArn), nil
}

// DeleteProvider deregisters the credential provider. The raw error is
// returned; the credential step classifies already-deleted as success.
func (c *realAWSClient) DeleteProvider(ctx context.Context, name string) error {
	_, err := c.control.DeleteOauth2CredentialProvider(ctx,
		&bedrockagentcorecontrol.DeleteOauth2CredentialProviderInput{
			Name: aws.String(name),
		})
	return err
}

// ---------- runtimePinger implementation ----------

// pingPayload is the minimal request sent to verify the deployed runtime
// answers on its data plane.
var pingPayload = map[string]string{"prompt": "ping"}

// PingRuntime invokes the deployed runtime once with a minimal payload and
// discards the response body. Used as a post-deploy smoke check.
func (c *realAWSClient) PingRuntime(ctx context.Context, runtimeARN string) error {
	payload, err := json.Marshal(pingPayload)
	if err != nil {
		return fmt.Errorf("marshal ping payload: %w", err)
	}
	sessionID := "stack-smoke-" + time.Now().UTC().Format("20060102150405.000000000")

	out, err := c.dataplane.InvokeAgentRuntime(ctx, &bedrockagentcore.InvokeAgentRuntimeInput{
		AgentRuntimeArn:  aws.String(runtimeARN),
		RuntimeSessionId: aws.String(sessionID),
		Payload:          payload,
		ContentType:      aws.String("application/json"),
		Accept:           aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("InvokeAgentRuntime: %w", err)
	}
	defer out.Response.Close()
	if _, err := io.Copy(io.Discard, out.Response); err != nil {
		return fmt.Errorf("read ping response: %w", err)
	}
	return nil
}
