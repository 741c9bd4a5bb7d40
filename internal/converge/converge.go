// Package converge implements the ConvergenceDriver (spec.md §4.6): it
// drives a Plan through a provider.Client in the eight required phases,
// maintaining an "updated" staging copy of the actual model and producing
// a ChangeReport. Ported from cumulogenesis's organization_runner.py,
// generalizing the teacher's worker-pool orchestration into a
// single-threaded ordered phase driver, per spec.md §5's "single-threaded
// cooperative" scheduling requirement.
package converge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stelligent/cumulogenesis/internal/differ"
	"github.com/stelligent/cumulogenesis/internal/loader"
	"github.com/stelligent/cumulogenesis/internal/orgmodel"
	"github.com/stelligent/cumulogenesis/internal/provider"
)

// defaultPollInterval and defaultMaxPolls bound the account-creation poll
// loop: 40 polls at 15 seconds is a 10 minute ceiling, the bounded retry
// policy spec.md §9's open question asks an implementer to pick.
const (
	defaultPollInterval = 15 * time.Second
	defaultMaxPolls     = 40
)

// Driver executes a Plan against a provider.Client.
type Driver struct {
	Client       provider.Client
	Logger       *slog.Logger
	PollInterval time.Duration
	MaxPolls     int
}

// New returns a Driver with the default poll bound; with no Logger set, the
// Driver logs to slog.Default().
func New(client provider.Client) *Driver {
	return &Driver{Client: client}
}

func (d *Driver) pollInterval() time.Duration {
	if d.PollInterval <= 0 {
		return defaultPollInterval
	}
	return d.PollInterval
}

func (d *Driver) maxPolls() int {
	if d.MaxPolls <= 0 {
		return defaultMaxPolls
	}
	return d.MaxPolls
}

func (d *Driver) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// Converge drives plan to completion against declared's actual snapshot,
// returning a ChangeReport mirroring the plan's shape. It never mutates
// declared or actual; it works against a deep copy ("updated") throughout.
func (d *Driver) Converge(ctx context.Context, plan *differ.Plan, declared, actual *orgmodel.Organization) (*ChangeReport, error) {
	runID := uuid.New().String()
	log := d.logger().With("converge_id", runID)
	log.Info("convergence started", "root_account", declared.RootAccountID)

	report := &ChangeReport{Problems: orgmodel.ProblemReport{}}
	if plan.Problems != nil {
		for category, byName := range plan.Problems {
			for name, problems := range byName {
				for _, p := range problems {
					report.Problems.Add(category, name, p)
				}
			}
		}
	}

	updated := actual.DeepCopy()

	if cancelled(ctx) {
		return report, ctx.Err()
	}

	var err error
	plan, updated, err = d.phaseCreateOrganization(ctx, log, plan, declared, updated, report)
	if err != nil {
		return report, err
	}
	if cancelled(ctx) {
		return report, ctx.Err()
	}

	if err := d.phaseUpsertPolicies(ctx, log, plan, updated, report); err != nil {
		return report, err
	}
	if cancelled(ctx) {
		return report, ctx.Err()
	}

	if err := d.phaseReconcileRootPolicies(ctx, log, declared, updated); err != nil {
		return report, err
	}
	if cancelled(ctx) {
		return report, ctx.Err()
	}

	if err := d.phaseCreateAccounts(ctx, log, plan, updated, report); err != nil {
		return report, err
	}
	if cancelled(ctx) {
		return report, ctx.Err()
	}

	if len(plan.OrgUnitAssociations) > 0 {
		log.Info("hierarchy restructure detected, rebuilding orgunit tree")
		if err := d.rebuildOrgunits(ctx, log, declared, updated, report); err != nil {
			return report, err
		}
	} else if err := d.phaseUpsertOrgUnits(ctx, log, plan, declared, updated, report); err != nil {
		return report, err
	}
	if cancelled(ctx) {
		return report, ctx.Err()
	}

	if err := d.phaseMoveAccounts(ctx, log, plan, updated, report); err != nil {
		return report, err
	}
	if cancelled(ctx) {
		return report, ctx.Err()
	}

	if err := d.phaseDeleteOrgUnits(ctx, log, plan, updated, report); err != nil {
		return report, err
	}
	if cancelled(ctx) {
		return report, ctx.Err()
	}

	if err := d.phaseDeletePolicies(ctx, log, plan, updated, report); err != nil {
		return report, err
	}

	log.Info("convergence finished")
	return report, nil
}

func cancelled(ctx context.Context) bool {
	return ctx.Err() != nil
}

// phaseCreateOrganization is phase 1. When the plan calls for a brand new
// organization, it creates it, reloads the actual state from the provider,
// enables the SCP policy type on the reloaded root, and re-diffs against
// it — the resulting
// plan replaces every other kind in the caller's plan, per spec.md §4.6
// ("run the Differ again ... and merge the resulting plan into the
// remainder of this run").
func (d *Driver) phaseCreateOrganization(ctx context.Context, log *slog.Logger, plan *differ.Plan, declared, updated *orgmodel.Organization, report *ChangeReport) (*differ.Plan, *orgmodel.Organization, error) {
	if plan.Organization == nil {
		return plan, updated, nil
	}

	switch plan.Organization.Action {
	case differ.ActionCreate:
		log.Info("creating organization", "featureset", declared.FeatureSet)
		if err := d.Client.CreateOrganization(ctx, string(declared.FeatureSet)); err != nil {
			report.Organization = &OrganizationChange{Change: ChangeFailed, Reason: err.Error()}
			return plan, updated, err
		}
		report.Organization = &OrganizationChange{Change: ChangeCreated}

		reloaded := orgmodel.New(declared.RootAccountID, orgmodel.SourceActual)
		if err := loader.New(d.Client).Load(ctx, reloaded); err != nil {
			return plan, updated, fmt.Errorf("converge: reload organization after create: %w", err)
		}
		if err := d.Client.EnablePolicyType(ctx, reloaded.RootParentID); err != nil {
			return plan, updated, fmt.Errorf("converge: enable policy type: %w", err)
		}

		merged := differ.Diff(declared, reloaded)
		merged.Organization = plan.Organization
		return merged, reloaded, nil

	case differ.ActionUpdate:
		updated.FeatureSet = declared.FeatureSet
		report.Organization = &OrganizationChange{Change: ChangeUpdated}
		return plan, updated, nil
	}
	return plan, updated, nil
}

func (d *Driver) phaseUpsertPolicies(ctx context.Context, log *slog.Logger, plan *differ.Plan, updated *orgmodel.Organization, report *ChangeReport) error {
	for _, pa := range plan.Policies {
		if cancelled(ctx) {
			return ctx.Err()
		}
		switch pa.Action {
		case differ.ActionCreate:
			content, err := resolvePolicyContent(pa.Declared)
			if err != nil {
				report.Policies = append(report.Policies, PolicyChange{Name: pa.Name, Change: ChangeFailed, Reason: err.Error()})
				continue
			}
			id, err := d.Client.CreatePolicy(ctx, pa.Name, pa.Declared.Description, content)
			if err != nil {
				report.Policies = append(report.Policies, PolicyChange{Name: pa.Name, Change: ChangeFailed, Reason: err.Error()})
				continue
			}
			stored := *pa.Declared
			stored.ID = id
			updated.Policies[pa.Name] = &stored
			report.Policies = append(report.Policies, PolicyChange{Name: pa.Name, Change: ChangeCreated, ID: id})
			log.Debug("policy created", "name", pa.Name, "id", id)

		case differ.ActionUpdate:
			content, err := resolvePolicyContent(pa.Declared)
			if err != nil {
				report.Policies = append(report.Policies, PolicyChange{Name: pa.Name, Change: ChangeFailed, Reason: err.Error()})
				continue
			}
			id := pa.Actual.ID
			if err := d.Client.UpdatePolicy(ctx, id, pa.Name, pa.Declared.Description, content); err != nil {
				report.Policies = append(report.Policies, PolicyChange{Name: pa.Name, Change: ChangeFailed, ID: id, Reason: err.Error()})
				continue
			}
			stored := *pa.Declared
			stored.ID = id
			updated.Policies[pa.Name] = &stored
			report.Policies = append(report.Policies, PolicyChange{Name: pa.Name, Change: ChangeUpdated, ID: id})
		}
	}
	return nil
}

func (d *Driver) phaseReconcileRootPolicies(ctx context.Context, log *slog.Logger, declared, updated *orgmodel.Organization) error {
	if err := d.reconcileAttachments(ctx, updated, updated.RootParentID, updated.RootPolicies, declared.RootPolicies); err != nil {
		return fmt.Errorf("converge: reconcile root policies: %w", err)
	}
	updated.RootPolicies = append([]string(nil), declared.RootPolicies...)
	log.Debug("root policies reconciled", "policies", updated.RootPolicies)
	return nil
}

func (d *Driver) phaseCreateAccounts(ctx context.Context, log *slog.Logger, plan *differ.Plan, updated *orgmodel.Organization, report *ChangeReport) error {
	for _, aa := range plan.Accounts {
		if cancelled(ctx) {
			return ctx.Err()
		}
		switch aa.Action {
		case differ.ActionCreate:
			reqID, err := d.Client.CreateAccount(ctx, aa.Declared.OwnerEmail, aa.Name)
			if err != nil {
				report.Accounts = append(report.Accounts, AccountChange{Name: aa.Name, Change: ChangeFailed, Reason: err.Error()})
				continue
			}
			status, err := d.pollAccountCreate(ctx, reqID)
			if err != nil {
				if errors.Is(err, orgmodel.ErrAccountCreateTimeout) {
					report.Accounts = append(report.Accounts, AccountChange{Name: aa.Name, Change: ChangeUnknown, Reason: err.Error()})
					continue
				}
				report.Accounts = append(report.Accounts, AccountChange{Name: aa.Name, Change: ChangeUnknown, Reason: err.Error()})
				return err
			}
			switch status.State {
			case provider.AccountCreateSucceeded:
				stored := &orgmodel.Account{
					Name:       aa.Name,
					OwnerEmail: aa.Declared.OwnerEmail,
					AccountID:  status.AccountID,
					Policies:   append([]string(nil), aa.Declared.Policies...),
					Groups:     append([]string(nil), aa.Declared.Groups...),
					Regions:    cloneRegions(aa.Declared.Regions),
				}
				updated.Accounts[aa.Name] = stored
				updated.AccountIDsToNames[status.AccountID] = aa.Name
				if err := d.reconcileAttachments(ctx, updated, status.AccountID, nil, stored.Policies); err != nil {
					return fmt.Errorf("converge: attach policies to new account %s: %w", aa.Name, err)
				}
				report.Accounts = append(report.Accounts, AccountChange{Name: aa.Name, Change: ChangeCreated, ID: status.AccountID})
				log.Info("account created", "name", aa.Name, "account_id", status.AccountID)
			case provider.AccountCreateFailed:
				report.Accounts = append(report.Accounts, AccountChange{Name: aa.Name, Change: ChangeFailed, Reason: status.FailureReason})
			default:
				report.Accounts = append(report.Accounts, AccountChange{Name: aa.Name, Change: ChangeUnknown, Reason: fmt.Sprintf("terminal state not reached: %s", status.State)})
			}

		case differ.ActionInvite:
			if err := d.Client.InviteAccount(ctx, aa.Declared.AccountID); err != nil {
				report.Accounts = append(report.Accounts, AccountChange{Name: aa.Name, Change: ChangeFailed, Reason: err.Error()})
				continue
			}
			report.Accounts = append(report.Accounts, AccountChange{Name: aa.Name, Change: ChangeCreated, ID: aa.Declared.AccountID, Reason: "invite"})

		case differ.ActionUpdate:
			if err := d.reconcileAttachments(ctx, updated, aa.Actual.AccountID, aa.Actual.Policies, aa.Declared.Policies); err != nil {
				report.Accounts = append(report.Accounts, AccountChange{Name: aa.Name, Change: ChangeFailed, ID: aa.Actual.AccountID, Reason: err.Error()})
				continue
			}
			stored := *aa.Actual
			stored.Policies = append([]string(nil), aa.Declared.Policies...)
			updated.Accounts[aa.Name] = &stored
			report.Accounts = append(report.Accounts, AccountChange{Name: aa.Name, Change: ChangeUpdated, ID: aa.Actual.AccountID})
		}
	}
	return nil
}

func (d *Driver) phaseUpsertOrgUnits(ctx context.Context, log *slog.Logger, plan *differ.Plan, declared, updated *orgmodel.Organization, report *ChangeReport) error {
	for _, oa := range plan.OrgUnits {
		if oa.Action == differ.ActionDelete {
			continue
		}
		if cancelled(ctx) {
			return ctx.Err()
		}
		switch oa.Action {
		case differ.ActionCreate:
			parentID := resolveParentID(updated, declared.OrgUnitParent(oa.Name))
			id, err := d.Client.CreateOrgUnit(ctx, parentID, oa.Name)
			if err != nil {
				report.OrgUnits = append(report.OrgUnits, OrgUnitChange{Name: oa.Name, Change: ChangeFailed, Reason: err.Error()})
				continue
			}
			stored := &orgmodel.OrgUnit{
				Name:     oa.Name,
				ID:       id,
				Policies: append([]string(nil), oa.Declared.Policies...),
			}
			updated.OrgUnits[oa.Name] = stored
			updated.OrgUnitIDsToNames[id] = oa.Name
			if err := d.reconcileAttachments(ctx, updated, id, nil, stored.Policies); err != nil {
				return fmt.Errorf("converge: attach policies to new orgunit %s: %w", oa.Name, err)
			}
			report.OrgUnits = append(report.OrgUnits, OrgUnitChange{Name: oa.Name, Change: ChangeCreated, ID: id})
			log.Info("orgunit created", "name", oa.Name, "id", id)

		case differ.ActionUpdate:
			if err := d.reconcileAttachments(ctx, updated, oa.Actual.ID, oa.Actual.Policies, oa.Declared.Policies); err != nil {
				report.OrgUnits = append(report.OrgUnits, OrgUnitChange{Name: oa.Name, Change: ChangeFailed, ID: oa.Actual.ID, Reason: err.Error()})
				continue
			}
			stored := *oa.Actual
			stored.Policies = append([]string(nil), oa.Declared.Policies...)
			updated.OrgUnits[oa.Name] = &stored
			report.OrgUnits = append(report.OrgUnits, OrgUnitChange{Name: oa.Name, Change: ChangeUpdated, ID: oa.Actual.ID})
		}
	}
	return nil
}

func (d *Driver) phaseMoveAccounts(ctx context.Context, log *slog.Logger, plan *differ.Plan, updated *orgmodel.Organization, report *ChangeReport) error {
	for _, assoc := range plan.AccountAssociations {
		if cancelled(ctx) {
			return ctx.Err()
		}
		account, ok := updated.Accounts[assoc.Name]
		if !ok {
			report.AccountAssociations = append(report.AccountAssociations, AccountAssociationChange{Name: assoc.Name, Parent: assoc.Parent, Change: ChangeFailed, Reason: "account not present in updated model"})
			continue
		}
		srcParentName := updated.AccountParent(assoc.Name)
		srcParentID := resolveParentID(updated, srcParentName)
		dstParentID := resolveParentID(updated, assoc.Parent)

		if err := d.Client.MoveAccount(ctx, account.AccountID, srcParentID, dstParentID); err != nil {
			report.AccountAssociations = append(report.AccountAssociations, AccountAssociationChange{Name: assoc.Name, Parent: assoc.Parent, Change: ChangeFailed, Reason: err.Error()})
			continue
		}

		if ou, ok := updated.OrgUnits[srcParentName]; ok {
			ou.Accounts = removeString(ou.Accounts, assoc.Name)
		}
		if assoc.Parent != differ.RootParent {
			if ou, ok := updated.OrgUnits[assoc.Parent]; ok {
				ou.Accounts = append(ou.Accounts, assoc.Name)
			}
		}
		report.AccountAssociations = append(report.AccountAssociations, AccountAssociationChange{Name: assoc.Name, Parent: assoc.Parent, Change: ChangeReassociated})
		log.Info("account moved", "name", assoc.Name, "parent", assoc.Parent)
	}
	return nil
}

func (d *Driver) phaseDeleteOrgUnits(ctx context.Context, log *slog.Logger, plan *differ.Plan, updated *orgmodel.Organization, report *ChangeReport) error {
	for _, oa := range plan.OrgUnits {
		if oa.Action != differ.ActionDelete {
			continue
		}
		if cancelled(ctx) {
			return ctx.Err()
		}
		err := d.Client.DeleteOrgUnit(ctx, oa.Actual.ID)
		if err != nil && !errors.Is(err, provider.ErrNotFound) {
			report.OrgUnits = append(report.OrgUnits, OrgUnitChange{Name: oa.Name, Change: ChangeFailed, ID: oa.Actual.ID, Reason: err.Error()})
			continue
		}
		delete(updated.OrgUnits, oa.Name)
		report.OrgUnits = append(report.OrgUnits, OrgUnitChange{Name: oa.Name, Change: ChangeDeleted, ID: oa.Actual.ID})
		log.Info("orgunit deleted", "name", oa.Name)
	}
	return nil
}

func (d *Driver) phaseDeletePolicies(ctx context.Context, log *slog.Logger, plan *differ.Plan, updated *orgmodel.Organization, report *ChangeReport) error {
	for _, pa := range plan.Policies {
		if pa.Action != differ.ActionDelete {
			continue
		}
		if cancelled(ctx) {
			return ctx.Err()
		}
		err := d.Client.DeletePolicy(ctx, pa.Actual.ID)
		if err != nil && !errors.Is(err, provider.ErrNotFound) {
			report.Policies = append(report.Policies, PolicyChange{Name: pa.Name, Change: ChangeFailed, ID: pa.Actual.ID, Reason: err.Error()})
			continue
		}
		delete(updated.Policies, pa.Name)
		report.Policies = append(report.Policies, PolicyChange{Name: pa.Name, Change: ChangeDeleted, ID: pa.Actual.ID})
		log.Info("policy deleted", "name", pa.Name)
	}
	return nil
}

func (d *Driver) pollAccountCreate(ctx context.Context, requestID string) (provider.AccountCreateStatus, error) {
	for i := 0; i < d.maxPolls(); i++ {
		status, err := d.Client.DescribeCreateAccountStatus(ctx, requestID)
		if err != nil {
			return provider.AccountCreateStatus{}, err
		}
		if status.State == provider.AccountCreateSucceeded || status.State == provider.AccountCreateFailed {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return provider.AccountCreateStatus{State: provider.AccountCreateState("CANCELLED")}, ctx.Err()
		case <-time.After(d.pollInterval()):
		}
	}
	return provider.AccountCreateStatus{}, orgmodel.ErrAccountCreateTimeout
}

func (d *Driver) reconcileAttachments(ctx context.Context, updated *orgmodel.Organization, targetID string, oldNames, newNames []string) error {
	oldSet, newSet := toSet(oldNames), toSet(newNames)
	for name := range newSet {
		if oldSet[name] {
			continue
		}
		id, ok := policyID(updated, name)
		if !ok {
			continue
		}
		if err := d.Client.AttachPolicy(ctx, id, targetID); err != nil {
			return err
		}
	}
	for name := range oldSet {
		if newSet[name] {
			continue
		}
		id, ok := policyID(updated, name)
		if !ok {
			continue
		}
		if err := d.Client.DetachPolicy(ctx, id, targetID); err != nil && !errors.Is(err, provider.ErrNotFound) {
			return err
		}
	}
	return nil
}

func policyID(updated *orgmodel.Organization, name string) (string, bool) {
	if p, ok := updated.Policies[name]; ok && p.ID != "" {
		return p.ID, true
	}
	return orgmodel.ManagedPolicyID(name)
}

func resolveParentID(updated *orgmodel.Organization, parentName string) string {
	if parentName == differ.RootParent {
		return updated.RootParentID
	}
	if ou, ok := updated.OrgUnits[parentName]; ok {
		return ou.ID
	}
	return ""
}

// resolvePolicyContent renders a declared policy's document to the raw
// text CreatePolicy/UpdatePolicy expects. Only embedded content is
// supported: resolving a document.location reference means reading an
// external file, which is the CLI/YAML-wiring layer's job and out of this
// engine's scope (spec.md §1 non-goals).
func resolvePolicyContent(p *orgmodel.Policy) (string, error) {
	if p.Document.Content != nil {
		b, err := p.Document.Content.Encode()
		if err != nil {
			return "", fmt.Errorf("policy %q: encode document: %w", p.Name, err)
		}
		return string(b), nil
	}
	return "", fmt.Errorf("policy %q: document.location must be resolved to content before it reaches the engine", p.Name)
}

func cloneRegions(in map[string]orgmodel.RegionConfig) map[string]orgmodel.RegionConfig {
	out := make(map[string]orgmodel.RegionConfig, len(in))
	for name, rc := range in {
		params := make(map[string]string, len(rc.Parameters))
		for k, v := range rc.Parameters {
			params[k] = v
		}
		out[name] = orgmodel.RegionConfig{Parameters: params}
	}
	return out
}

func toSet(names []string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

func removeString(in []string, target string) []string {
	out := in[:0:0]
	for _, v := range in {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}
