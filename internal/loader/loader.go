// Package loader implements the Loader (spec.md §4.4): it uses a
// provider.Client to populate an empty actual Organization model. Ported
// from cumulogenesis's organization_loader.py, generalizing nebula's
// worker-pool module-execution pattern (internal/message + a bounded
// goroutine fan-out) to bounded concurrent listing of orgunit children
// instead of module dispatch.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/stelligent/cumulogenesis/internal/config/yamldoc"
	"github.com/stelligent/cumulogenesis/internal/orgmodel"
	"github.com/stelligent/cumulogenesis/internal/provider"
	"golang.org/x/sync/errgroup"
)

// defaultConcurrency bounds how many ProviderClient listing/describe calls
// the loader keeps in flight at once. The upstream API has no documented
// concurrency ceiling; this is a conservative default chosen to stay well
// under typical per-account request-rate limits.
const defaultConcurrency = 8

// Loader populates an actual Organization model from a provider.Client.
type Loader struct {
	Client      provider.Client
	Concurrency int
}

// New returns a Loader with the default concurrency bound.
func New(client provider.Client) *Loader {
	return &Loader{Client: client, Concurrency: defaultConcurrency}
}

func (l *Loader) concurrency() int {
	if l.Concurrency <= 0 {
		return defaultConcurrency
	}
	return l.Concurrency
}

// Load runs the six steps of spec.md §4.4 against actual, which must be a
// freshly constructed Organization (orgmodel.New) with Source ==
// SourceActual and RootAccountID already set. Load is read-only: it never
// calls a mutating ProviderClient method.
func (l *Loader) Load(ctx context.Context, actual *orgmodel.Organization) error {
	info, err := l.Client.DescribeOrganization(ctx)
	if err != nil {
		if errors.Is(err, provider.ErrNotFound) {
			actual.Exists = false
			return nil
		}
		return fmt.Errorf("loader: describe organization: %w", err)
	}
	if !info.Exists {
		actual.Exists = false
		return nil
	}
	if info.MasterAccountID != actual.RootAccountID {
		return orgmodel.ErrOrganizationMemberAccount
	}

	actual.Exists = true
	actual.FeatureSet = orgmodel.FeatureSet(info.FeatureSet)
	actual.OrgID = info.OrgID

	rootParentID, err := l.Client.ListRootParentOf(ctx, actual.RootAccountID)
	if err != nil {
		return fmt.Errorf("loader: resolve root parent: %w", err)
	}
	actual.RootParentID = rootParentID

	orgUnitIDs, err := l.walkChildren(ctx, rootParentID, actual.IDsToChildren)
	if err != nil {
		return fmt.Errorf("loader: walk orgunit tree: %w", err)
	}

	if err := l.loadAccounts(ctx, actual); err != nil {
		return fmt.Errorf("loader: list accounts: %w", err)
	}

	if err := l.loadOrgUnits(ctx, actual, orgUnitIDs); err != nil {
		return fmt.Errorf("loader: describe orgunits: %w", err)
	}

	if err := l.loadPolicies(ctx, actual); err != nil {
		return fmt.Errorf("loader: load policies: %w", err)
	}

	return nil
}

// walkChildren performs a breadth-first walk of the orgunit tree rooted at
// rootParentID, listing each level's children concurrently (bounded by
// Concurrency) before descending to the next. It returns every orgunit id
// discovered and populates idsToChildren along the way.
func (l *Loader) walkChildren(ctx context.Context, rootParentID string, idsToChildren map[string]*orgmodel.ChildIDs) ([]string, error) {
	var allOrgUnitIDs []string
	frontier := []string{rootParentID}

	for len(frontier) > 0 {
		results := make([]*orgmodel.ChildIDs, len(frontier))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(l.concurrency())

		for i, parentID := range frontier {
			i, parentID := i, parentID
			g.Go(func() error {
				children, err := l.listChildIDs(gctx, parentID)
				if err != nil {
					return err
				}
				results[i] = children
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		var next []string
		for i, parentID := range frontier {
			idsToChildren[parentID] = results[i]
			allOrgUnitIDs = append(allOrgUnitIDs, results[i].OrgUnitIDs...)
			next = append(next, results[i].OrgUnitIDs...)
		}
		frontier = next
	}
	return allOrgUnitIDs, nil
}

func (l *Loader) listChildIDs(ctx context.Context, parentID string) (*orgmodel.ChildIDs, error) {
	orgUnits, err := l.Client.ListChildren(ctx, parentID, provider.ChildKindOrgUnit)
	if err != nil {
		return nil, err
	}
	accounts, err := l.Client.ListChildren(ctx, parentID, provider.ChildKindAccount)
	if err != nil {
		return nil, err
	}
	c := &orgmodel.ChildIDs{}
	for _, r := range orgUnits {
		c.OrgUnitIDs = append(c.OrgUnitIDs, r.ID)
	}
	for _, r := range accounts {
		c.AccountIDs = append(c.AccountIDs, r.ID)
	}
	return c, nil
}

func (l *Loader) loadAccounts(ctx context.Context, actual *orgmodel.Organization) error {
	accounts, err := l.Client.ListAccounts(ctx)
	if err != nil {
		return err
	}
	for _, a := range accounts {
		actual.AccountIDsToNames[a.ID] = a.Name
		actual.Accounts[a.Name] = &orgmodel.Account{
			Name:      a.Name,
			OwnerEmail: a.Email,
			AccountID: a.ID,
			Regions:   map[string]orgmodel.RegionConfig{},
		}
	}
	return nil
}

func (l *Loader) loadOrgUnits(ctx context.Context, actual *orgmodel.Organization, orgUnitIDs []string) error {
	infos := make([]provider.OrgUnitInfo, len(orgUnitIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency())
	for i, id := range orgUnitIDs {
		i, id := i, id
		g.Go(func() error {
			info, err := l.Client.DescribeOrgUnit(gctx, id)
			if err != nil {
				return err
			}
			infos[i] = info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, id := range orgUnitIDs {
		info := infos[i]
		actual.OrgUnitIDsToNames[id] = info.Name
		actual.OrgUnits[info.Name] = &orgmodel.OrgUnit{Name: info.Name, ID: id}
	}

	for i, id := range orgUnitIDs {
		info := infos[i]
		ou := actual.OrgUnits[info.Name]
		children := actual.IDsToChildren[id]
		if children == nil {
			continue
		}
		for _, childID := range children.OrgUnitIDs {
			if childName, ok := actual.OrgUnitIDsToNames[childID]; ok {
				ou.ChildOrgUnits = append(ou.ChildOrgUnits, childName)
			}
		}
		for _, childID := range children.AccountIDs {
			if childName, ok := actual.AccountIDsToNames[childID]; ok {
				ou.Accounts = append(ou.Accounts, childName)
			}
		}
	}
	return nil
}

func (l *Loader) loadPolicies(ctx context.Context, actual *orgmodel.Organization) error {
	summaries, err := l.Client.ListPolicies(ctx, provider.PolicyFilterSCP)
	if err != nil {
		return err
	}

	type loaded struct {
		summary provider.PolicySummary
		content *yamldoc.Mapping
		targets []provider.PolicyTarget
	}
	results := make([]loaded, len(summaries))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency())
	for i, s := range summaries {
		i, s := i, s
		g.Go(func() error {
			raw, err := l.Client.DescribePolicy(gctx, s.ID)
			if err != nil {
				return err
			}
			doc, err := yamldoc.Decode([]byte(raw))
			if err != nil {
				return fmt.Errorf("policy %s: %w", s.Name, err)
			}
			targets, err := l.Client.ListTargetsForPolicy(gctx, s.ID)
			if err != nil {
				return err
			}
			mu.Lock()
			results[i] = loaded{summary: s, content: doc, targets: targets}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, r := range results {
		actual.Policies[r.summary.Name] = &orgmodel.Policy{
			Name:        r.summary.Name,
			ID:          r.summary.ID,
			Description: r.summary.Description,
			AWSManaged:  r.summary.AWSManaged,
			Document:    orgmodel.PolicyDocument{Content: r.content},
		}
		for _, t := range r.targets {
			switch t.Type {
			case provider.TargetKindRoot:
				actual.RootPolicies = append(actual.RootPolicies, r.summary.Name)
			case provider.TargetKindOrgUnit:
				if name, ok := actual.OrgUnitIDsToNames[t.ID]; ok {
					actual.OrgUnits[name].Policies = append(actual.OrgUnits[name].Policies, r.summary.Name)
				}
			default:
				if name, ok := actual.AccountIDsToNames[t.ID]; ok {
					actual.Accounts[name].Policies = append(actual.Accounts[name].Policies, r.summary.Name)
				}
			}
		}
	}
	return nil
}
