// Package awsorg implements provider.Client against the real AWS
// Organizations API. Call shapes (pagination loops, NewFromConfig wiring)
// are grounded on the teacher's pkg/links/aws/orgpolicies/orgpolicies.go;
// the full read/write surface (create/update/delete/attach/move) is
// grounded on cumulogenesis's services/organization.py, which the
// teacher's recon-only file never needed to exercise.
package awsorg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	orgtypes "github.com/aws/aws-sdk-go-v2/service/organizations/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/aws/smithy-go/logging"
	"github.com/cenkalti/backoff/v4"

	"github.com/stelligent/cumulogenesis/internal/logs"
	"github.com/stelligent/cumulogenesis/internal/orgmodel"
	"github.com/stelligent/cumulogenesis/internal/provider"
)

// Config carries the provisioner settings that select an AWS session:
// profile, static keys, default region. Mirrors organization.py's
// _initialize_session_builder accepting access_key/secret_key OR profile.
type Config struct {
	Profile       string
	AccessKey     string
	SecretKey     string
	DefaultRegion string

	// Logger receives AWS SDK request traces; callers typically pass
	// logs.ProviderLogger() so this traffic lands in the same slog stream
	// as the rest of the engine.
	Logger logging.Logger
}

// Client implements provider.Client against organizations.Client and
// sts.Client.
type Client struct {
	org *organizations.Client
	sts *sts.Client
}

// New resolves an aws.Config from cfg and returns a ready-to-use Client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	region := cfg.DefaultRegion
	if region == "" {
		region = "us-east-1" // Organizations is a global-ish service fronted from us-east-1.
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(region))
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(aws.CredentialsProviderFunc(
			func(ctx context.Context) (aws.Credentials, error) {
				return aws.Credentials{AccessKeyID: cfg.AccessKey, SecretAccessKey: cfg.SecretKey}, nil
			})))
	}
	if cfg.Logger != nil {
		opts = append(opts, awsconfig.WithLogger(cfg.Logger))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("awsorg: load config: %w", err)
	}

	return &Client{
		org: organizations.NewFromConfig(awsCfg),
		sts: sts.NewFromConfig(awsCfg),
	}, nil
}

// ResolveConfig builds a Config from a declared Provisioner block, applying
// the CLI's profile override when profileOverride is non-empty. Mirrors
// organization.py's _initialize_session_builder precondition checks: an
// access key without a secret key (or vice versa) and a missing role name
// are both rejected before a session is ever built.
func ResolveConfig(p orgmodel.Provisioner, profileOverride string) (Config, error) {
	if (p.AccessKey == "") != (p.SecretKey == "") {
		return Config{}, orgmodel.ErrAccessKeysInvalid
	}
	if p.Role == "" {
		return Config{}, orgmodel.ErrRoleNameNotSpecified
	}
	profile := p.Profile
	if profileOverride != "" {
		profile = profileOverride
	}
	return Config{
		Profile:       profile,
		AccessKey:     p.AccessKey,
		SecretKey:     p.SecretKey,
		DefaultRegion: p.DefaultRegion,
		Logger:        logs.ProviderLogger(),
	}, nil
}

// retry wraps a single AWS call in cumulogenesis's standard backoff
// policy: exponential with jitter, capped at five attempts, honouring
// ctx cancellation between attempts. The Loader and ConvergenceDriver
// never retry themselves (spec.md §4.4/§7) — it all happens here.
func retry(ctx context.Context, op func() error) error {
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, provider.ErrNotFound) || errors.Is(err, provider.ErrCancelled) {
			return backoff.Permanent(err)
		}
		return err
	}, bo)
}

// classify maps a raw AWS SDK error into the engine's transport-error
// taxonomy (spec.md §7): smithy-go's APIError interface exposes the AWS
// error code without depending on organizations-specific error types.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "OrganizationalUnitNotFoundException",
			"AccountNotFoundException",
			"PolicyNotFoundException",
			"TargetNotFoundException",
			"ChildNotFoundException":
			return fmt.Errorf("%w: %s", provider.ErrNotFound, apiErr.ErrorMessage())
		}
	}
	return err
}

func (c *Client) DescribeOrganization(ctx context.Context) (provider.OrganizationInfo, error) {
	var info provider.OrganizationInfo
	err := retry(ctx, func() error {
		out, err := c.org.DescribeOrganization(ctx, &organizations.DescribeOrganizationInput{})
		if err != nil {
			classified := classify(err)
			if errors.Is(classified, provider.ErrNotFound) {
				info = provider.OrganizationInfo{Exists: false}
				return nil
			}
			return classified
		}
		info = provider.OrganizationInfo{
			Exists:          true,
			FeatureSet:      string(out.Organization.FeatureSet),
			MasterAccountID: aws.ToString(out.Organization.MasterAccountId),
			OrgID:           aws.ToString(out.Organization.Id),
		}
		return nil
	})
	return info, err
}

func (c *Client) ListRootParentOf(ctx context.Context, accountID string) (string, error) {
	parents, err := c.ListParents(ctx, accountID)
	if err != nil {
		return "", err
	}
	for _, p := range parents {
		if p.Type == provider.ParentKindRoot {
			return p.ID, nil
		}
	}
	return "", fmt.Errorf("awsorg: no ROOT parent found for %s", accountID)
}

func (c *Client) ListChildren(ctx context.Context, parentID string, kind provider.ChildKind) ([]provider.ChildRef, error) {
	var refs []provider.ChildRef
	var nextToken *string
	for {
		var err error
		switch kind {
		case provider.ChildKindOrgUnit:
			err = retry(ctx, func() error {
				out, callErr := c.org.ListOrganizationalUnitsForParent(ctx, &organizations.ListOrganizationalUnitsForParentInput{
					ParentId:  &parentID,
					NextToken: nextToken,
				})
				if callErr != nil {
					return classify(callErr)
				}
				for _, ou := range out.OrganizationalUnits {
					refs = append(refs, provider.ChildRef{ID: aws.ToString(ou.Id)})
				}
				nextToken = out.NextToken
				return nil
			})
		case provider.ChildKindAccount:
			err = retry(ctx, func() error {
				out, callErr := c.org.ListAccountsForParent(ctx, &organizations.ListAccountsForParentInput{
					ParentId:  &parentID,
					NextToken: nextToken,
				})
				if callErr != nil {
					return classify(callErr)
				}
				for _, a := range out.Accounts {
					refs = append(refs, provider.ChildRef{ID: aws.ToString(a.Id)})
				}
				nextToken = out.NextToken
				return nil
			})
		default:
			return nil, fmt.Errorf("awsorg: unknown child kind %q", kind)
		}
		if err != nil {
			return nil, err
		}
		if nextToken == nil {
			break
		}
	}
	return refs, nil
}

func (c *Client) DescribeOrgUnit(ctx context.Context, id string) (provider.OrgUnitInfo, error) {
	var info provider.OrgUnitInfo
	err := retry(ctx, func() error {
		out, err := c.org.DescribeOrganizationalUnit(ctx, &organizations.DescribeOrganizationalUnitInput{OrganizationalUnitId: &id})
		if err != nil {
			return classify(err)
		}
		info = provider.OrgUnitInfo{ID: aws.ToString(out.OrganizationalUnit.Id), Name: aws.ToString(out.OrganizationalUnit.Name)}
		return nil
	})
	return info, err
}

func (c *Client) ListAccounts(ctx context.Context) ([]provider.AccountInfo, error) {
	var accounts []provider.AccountInfo
	var nextToken *string
	for {
		err := retry(ctx, func() error {
			out, err := c.org.ListAccounts(ctx, &organizations.ListAccountsInput{NextToken: nextToken})
			if err != nil {
				return classify(err)
			}
			for _, a := range out.Accounts {
				accounts = append(accounts, provider.AccountInfo{
					ID:    aws.ToString(a.Id),
					Name:  aws.ToString(a.Name),
					Email: aws.ToString(a.Email),
				})
			}
			nextToken = out.NextToken
			return nil
		})
		if err != nil {
			return nil, err
		}
		if nextToken == nil {
			break
		}
	}
	return accounts, nil
}

func (c *Client) ListPolicies(ctx context.Context, filter provider.PolicyFilter) ([]provider.PolicySummary, error) {
	var summaries []provider.PolicySummary
	var nextToken *string
	for {
		err := retry(ctx, func() error {
			out, err := c.org.ListPolicies(ctx, &organizations.ListPoliciesInput{
				Filter:    orgtypes.PolicyType(filter),
				NextToken: nextToken,
			})
			if err != nil {
				return classify(err)
			}
			for _, p := range out.Policies {
				summaries = append(summaries, provider.PolicySummary{
					ID:          aws.ToString(p.Id),
					Name:        aws.ToString(p.Name),
					Description: aws.ToString(p.Description),
					AWSManaged:  aws.ToBool(p.AwsManaged),
				})
			}
			nextToken = out.NextToken
			return nil
		})
		if err != nil {
			return nil, err
		}
		if nextToken == nil {
			break
		}
	}
	return summaries, nil
}

func (c *Client) DescribePolicy(ctx context.Context, id string) (string, error) {
	var content string
	err := retry(ctx, func() error {
		out, err := c.org.DescribePolicy(ctx, &organizations.DescribePolicyInput{PolicyId: &id})
		if err != nil {
			return classify(err)
		}
		content = aws.ToString(out.Policy.Content)
		return nil
	})
	return content, err
}

func (c *Client) ListTargetsForPolicy(ctx context.Context, id string) ([]provider.PolicyTarget, error) {
	var targets []provider.PolicyTarget
	var nextToken *string
	for {
		err := retry(ctx, func() error {
			out, err := c.org.ListTargetsForPolicy(ctx, &organizations.ListTargetsForPolicyInput{
				PolicyId:  &id,
				NextToken: nextToken,
			})
			if err != nil {
				return classify(err)
			}
			for _, t := range out.Targets {
				targets = append(targets, provider.PolicyTarget{
					Type: provider.TargetKind(t.Type),
					ID:   aws.ToString(t.TargetId),
					Name: aws.ToString(t.Name),
				})
			}
			nextToken = out.NextToken
			return nil
		})
		if err != nil {
			return nil, err
		}
		if nextToken == nil {
			break
		}
	}
	return targets, nil
}

func (c *Client) CreateOrganization(ctx context.Context, featureSet string) error {
	return retry(ctx, func() error {
		_, err := c.org.CreateOrganization(ctx, &organizations.CreateOrganizationInput{
			FeatureSet: orgtypes.OrganizationFeatureSet(featureSet),
		})
		return classify(err)
	})
}

func (c *Client) EnablePolicyType(ctx context.Context, rootID string) error {
	return retry(ctx, func() error {
		_, err := c.org.EnablePolicyType(ctx, &organizations.EnablePolicyTypeInput{
			RootId:     &rootID,
			PolicyType: orgtypes.PolicyTypeServiceControlPolicy,
		})
		return classify(err)
	})
}

func (c *Client) CreateAccount(ctx context.Context, email, name string) (string, error) {
	var requestID string
	err := retry(ctx, func() error {
		out, err := c.org.CreateAccount(ctx, &organizations.CreateAccountInput{
			AccountName: &name,
			Email:       &email,
		})
		if err != nil {
			return classify(err)
		}
		requestID = aws.ToString(out.CreateAccountStatus.Id)
		return nil
	})
	return requestID, err
}

func (c *Client) DescribeCreateAccountStatus(ctx context.Context, requestID string) (provider.AccountCreateStatus, error) {
	var status provider.AccountCreateStatus
	err := retry(ctx, func() error {
		out, err := c.org.DescribeCreateAccountStatus(ctx, &organizations.DescribeCreateAccountStatusInput{
			CreateAccountRequestId: &requestID,
		})
		if err != nil {
			return classify(err)
		}
		status = provider.AccountCreateStatus{
			State:         provider.AccountCreateState(out.CreateAccountStatus.State),
			AccountID:     aws.ToString(out.CreateAccountStatus.AccountId),
			FailureReason: string(out.CreateAccountStatus.FailureReason),
		}
		return nil
	})
	return status, err
}

func (c *Client) InviteAccount(ctx context.Context, accountID string) error {
	// See spec.md §9 Open Questions: invite is asserted but never exercised
	// end-to-end in the source this engine is ported from. Left behind a
	// clear error rather than silently no-oping.
	return provider.ErrNotImplemented
}

func (c *Client) CreateOrgUnit(ctx context.Context, parentID, name string) (string, error) {
	var id string
	err := retry(ctx, func() error {
		out, err := c.org.CreateOrganizationalUnit(ctx, &organizations.CreateOrganizationalUnitInput{
			ParentId: &parentID,
			Name:     &name,
		})
		if err != nil {
			return classify(err)
		}
		id = aws.ToString(out.OrganizationalUnit.Id)
		return nil
	})
	return id, err
}

func (c *Client) UpdateOrgUnit(ctx context.Context, id, name string) error {
	return retry(ctx, func() error {
		_, err := c.org.UpdateOrganizationalUnit(ctx, &organizations.UpdateOrganizationalUnitInput{
			OrganizationalUnitId: &id,
			Name:                 &name,
		})
		return classify(err)
	})
}

func (c *Client) DeleteOrgUnit(ctx context.Context, id string) error {
	return retry(ctx, func() error {
		_, err := c.org.DeleteOrganizationalUnit(ctx, &organizations.DeleteOrganizationalUnitInput{OrganizationalUnitId: &id})
		return classify(err)
	})
}

func (c *Client) CreatePolicy(ctx context.Context, name, description, content string) (string, error) {
	var id string
	err := retry(ctx, func() error {
		out, err := c.org.CreatePolicy(ctx, &organizations.CreatePolicyInput{
			Name:        &name,
			Description: &description,
			Content:     &content,
			Type:        orgtypes.PolicyTypeServiceControlPolicy,
		})
		if err != nil {
			return classify(err)
		}
		id = aws.ToString(out.Policy.PolicySummary.Id)
		return nil
	})
	return id, err
}

func (c *Client) UpdatePolicy(ctx context.Context, id, name, description, content string) error {
	return retry(ctx, func() error {
		_, err := c.org.UpdatePolicy(ctx, &organizations.UpdatePolicyInput{
			PolicyId:    &id,
			Name:        &name,
			Description: &description,
			Content:     &content,
		})
		return classify(err)
	})
}

func (c *Client) DeletePolicy(ctx context.Context, id string) error {
	return retry(ctx, func() error {
		_, err := c.org.DeletePolicy(ctx, &organizations.DeletePolicyInput{PolicyId: &id})
		return classify(err)
	})
}

func (c *Client) AttachPolicy(ctx context.Context, policyID, targetID string) error {
	return retry(ctx, func() error {
		_, err := c.org.AttachPolicy(ctx, &organizations.AttachPolicyInput{PolicyId: &policyID, TargetId: &targetID})
		return classify(err)
	})
}

func (c *Client) DetachPolicy(ctx context.Context, policyID, targetID string) error {
	return retry(ctx, func() error {
		_, err := c.org.DetachPolicy(ctx, &organizations.DetachPolicyInput{PolicyId: &policyID, TargetId: &targetID})
		classified := classify(err)
		if errors.Is(classified, provider.ErrNotFound) {
			return nil // already detached: idempotent absorb, per spec.md §7.
		}
		return classified
	})
}

func (c *Client) ListParents(ctx context.Context, childID string) ([]provider.ParentRef, error) {
	var refs []provider.ParentRef
	var nextToken *string
	for {
		err := retry(ctx, func() error {
			out, err := c.org.ListParents(ctx, &organizations.ListParentsInput{ChildId: &childID, NextToken: nextToken})
			if err != nil {
				return classify(err)
			}
			for _, p := range out.Parents {
				refs = append(refs, provider.ParentRef{ID: aws.ToString(p.Id), Type: provider.ParentKind(p.Type)})
			}
			nextToken = out.NextToken
			return nil
		})
		if err != nil {
			return nil, err
		}
		if nextToken == nil {
			break
		}
	}
	return refs, nil
}

func (c *Client) MoveAccount(ctx context.Context, accountID, srcParentID, dstParentID string) error {
	return retry(ctx, func() error {
		_, err := c.org.MoveAccount(ctx, &organizations.MoveAccountInput{
			AccountId:           &accountID,
			SourceParentId:      &srcParentID,
			DestinationParentId: &dstParentID,
		})
		return classify(err)
	})
}

// CallerAccountID resolves the caller's account id via STS. It is not part
// of provider.Client and nothing in the engine calls it: the loader checks
// the declared root against the master account id that
// DescribeOrganization reports.
func (c *Client) CallerAccountID(ctx context.Context) (string, error) {
	var id string
	err := retry(ctx, func() error {
		out, err := c.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
		if err != nil {
			return classify(err)
		}
		id = aws.ToString(out.Account)
		return nil
	})
	return id, err
}

var _ provider.Client = (*Client)(nil)

// PollInterval is the account-creation settling period of this provider.
// The convergence driver does not read it; its own default poll interval
// has the same 15-second value.
const PollInterval = 15 * time.Second
