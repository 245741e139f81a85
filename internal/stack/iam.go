package stack

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
)

// PolicyStatement is one statement in an IAM policy document.
type PolicyStatement struct {
	Sid       string            `json:"Sid,omitempty"`
	Effect    string            `json:"Effect"`
	Principal map[string]string `json:"Principal,omitempty"`
	Action    []string          `json:"Action"`
	Resource  []string          `json:"Resource,omitempty"`
	Condition map[string]any    `json:"Condition,omitempty"`
}

// policyDocument is a complete IAM policy document.
type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []PolicyStatement `json:"Statement"`
}

// policyJSON marshals statements into a policy document string.
func policyJSON(statements ...PolicyStatement) string {
	doc := policyDocument{Version: "2012-10-17", Statement: statements}
	data, err := json.Marshal(doc)
	if err != nil {
		// Statements are built from static literals; marshal cannot fail.
		panic(fmt.Sprintf("marshal policy document: %v", err))
	}
	return string(data)
}

// agentcoreTrustPolicy is the trust policy allowing the AgentCore service to
// assume a role, scoped to this account.
func agentcoreTrustPolicy(accountID string) string {
	return policyJSON(PolicyStatement{
		Effect:    "Allow",
		Principal: map[string]string{"Service": "bedrock-agentcore.amazonaws.com"},
		Action:    []string{"sts:AssumeRole"},
		Condition: map[string]any{
			"StringEquals": map[string]string{"aws:SourceAccount": accountID},
		},
	})
}

// runtimePolicies returns the inline policies for the runtime execution role:
// image pull, log delivery, memory access, secret read, and model invocation.
// ecr:GetAuthorizationToken and the telemetry actions are not resource-level
// permissions, hence the wildcard resource on those statements only.
func runtimePolicies(cfg *Config) []NamedPolicy {
	region, account := cfg.Region, cfg.AccountID
	repoARN := fmt.Sprintf("arn:aws:ecr:%s:%s:repository/%s", region, account, repositoryName(cfg.App))
	memoryARN := fmt.Sprintf("arn:aws:bedrock-agentcore:%s:%s:memory/*", region, account)
	secretARN := fmt.Sprintf("arn:aws:secretsmanager:%s:%s:secret:%s*", region, account, secretName(cfg.App))
	logsARN := fmt.Sprintf("arn:aws:logs:%s:%s:log-group:*", region, account)

	return []NamedPolicy{
		{
			Name: "image-pull",
			Document: policyJSON(
				PolicyStatement{
					Sid:      "GetAuthToken",
					Effect:   "Allow",
					Action:   []string{"ecr:GetAuthorizationToken"},
					Resource: []string{"*"},
				},
				PolicyStatement{
					Sid:      "PullImage",
					Effect:   "Allow",
					Action:   []string{"ecr:BatchGetImage", "ecr:GetDownloadUrlForLayer"},
					Resource: []string{repoARN},
				},
			),
		},
		{
			Name: "observability",
			Document: policyJSON(
				PolicyStatement{
					Sid:    "Logs",
					Effect: "Allow",
					Action: []string{
						"logs:CreateLogGroup",
						"logs:CreateLogStream",
						"logs:PutLogEvents",
						"logs:DescribeLogGroups",
						"logs:DescribeLogStreams",
					},
					Resource: []string{logsARN},
				},
				PolicyStatement{
					Sid:    "Telemetry",
					Effect: "Allow",
					Action: []string{
						"xray:PutTraceSegments",
						"xray:PutTelemetryRecords",
						"cloudwatch:PutMetricData",
					},
					Resource: []string{"*"},
				},
			),
		},
		{
			Name: "memory-access",
			Document: policyJSON(PolicyStatement{
				Sid:    "Memory",
				Effect: "Allow",
				Action: []string{
					"bedrock-agentcore:CreateEvent",
					"bedrock-agentcore:ListEvents",
					"bedrock-agentcore:RetrieveMemoryRecords",
					"bedrock-agentcore:GetMemoryRecord",
					"bedrock-agentcore:ListMemoryRecords",
				},
				Resource: []string{memoryARN},
			}),
		},
		{
			Name: "secret-read",
			Document: policyJSON(PolicyStatement{
				Sid:      "ReadAPIKey",
				Effect:   "Allow",
				Action:   []string{"secretsmanager:GetSecretValue"},
				Resource: []string{secretARN},
			}),
		},
		{
			Name: "model-invoke",
			Document: policyJSON(PolicyStatement{
				Sid:    "InvokeModels",
				Effect: "Allow",
				Action: []string{"bedrock:InvokeModel", "bedrock:InvokeModelWithResponseStream"},
				Resource: []string{
					"arn:aws:bedrock:*::foundation-model/*",
					fmt.Sprintf("arn:aws:bedrock:%s:%s:inference-profile/*", region, account),
				},
			}),
		},
	}
}

// gatewayPolicies returns the inline policies for the gateway execution role:
// invoking the runtime and fetching workload access tokens for outbound
// credential exchange.
func gatewayPolicies(cfg *Config) []NamedPolicy {
	region, account := cfg.Region, cfg.AccountID
	runtimeARN := fmt.Sprintf("arn:aws:bedrock-agentcore:%s:%s:runtime/*", region, account)
	identityARN := fmt.Sprintf("arn:aws:bedrock-agentcore:%s:%s:token-vault/*", region, account)

	return []NamedPolicy{
		{
			Name: "invoke-runtime",
			Document: policyJSON(PolicyStatement{
				Sid:      "InvokeRuntime",
				Effect:   "Allow",
				Action:   []string{"bedrock-agentcore:InvokeAgentRuntime"},
				Resource: []string{runtimeARN},
			}),
		},
		{
			Name: "workload-identity",
			Document: policyJSON(PolicyStatement{
				Sid:    "WorkloadTokens",
				Effect: "Allow",
				Action: []string{
					"bedrock-agentcore:GetWorkloadAccessToken",
					"bedrock-agentcore:GetResourceOauth2Token",
				},
				Resource: []string{identityARN},
			}),
		},
	}
}

// runtimePolicyNames returns the inline policy names attached to the runtime
// role, used by destroy.
func runtimePolicyNames() []string {
	return []string{"image-pull", "observability", "memory-access", "secret-read", "model-invoke"}
}

// gatewayPolicyNames returns the inline policy names attached to the gateway
// role, used by destroy.
func gatewayPolicyNames() []string {
	return []string{"invoke-runtime", "workload-identity"}
}

// rolesUnit provisions the runtime and gateway execution roles and publishes
// their ARNs.
type rolesUnit struct{}

func (u *rolesUnit) Name() string { return UnitRoles }

func (u *rolesUnit) Requires() []string { return nil }

func (u *rolesUnit) Provision(ctx context.Context, d *Deployment) error {
	trust := agentcoreTrustPolicy(d.Cfg.AccountID)

	runtimeRole := runtimeRoleName(d.Cfg.App)
	runtimeARN, err := d.Clients.IAM.EnsureRole(ctx, runtimeRole, trust, runtimePolicies(d.Cfg), d.Cfg.Tags)
	if err != nil {
		return err
	}
	log.Printf("stack: role %s ready", runtimeRole)
	d.Outputs.Publish(OutRuntimeRoleARN, runtimeARN)
	d.record(ResourceState{
		Type:   ResTypeRole,
		Name:   runtimeRole,
		ARN:    runtimeARN,
		Status: StatusHealthy,
	})

	gatewayRole := gatewayRoleName(d.Cfg.App)
	gatewayARN, err := d.Clients.IAM.EnsureRole(ctx, gatewayRole, trust, gatewayPolicies(d.Cfg), d.Cfg.Tags)
	if err != nil {
		return err
	}
	log.Printf("stack: role %s ready", gatewayRole)
	d.Outputs.Publish(OutGatewayRoleARN, gatewayARN)
	d.record(ResourceState{
		Type:   ResTypeRole,
		Name:   gatewayRole,
		ARN:    gatewayARN,
		Status: StatusHealthy,
	})

	return nil
}
