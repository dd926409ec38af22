package aggregation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/DE-IBH/b3lb/internal/store"
)

// metricPrefix namespaces every exported sample.
const metricPrefix = "b3lb_"

// RebuildSecretMetrics renders the Prometheus document served for one
// secret. A sub-ID secret exports only its own samples; the tenant-wide
// secret (sub ID 0) exports one series per tenant secret plus the
// tenant total under the bare tenant slug.
func (a *Aggregator) RebuildSecretMetrics(ctx context.Context, secret *store.Secret) error {
	var (
		metrics []*store.Metric
		err     error
	)
	if secret.SubID == 0 {
		metrics, err = a.store.ListMetricsForTenant(ctx, secret.Tenant.UUID)
	} else {
		metrics, err = a.store.ListMetricsForSecret(ctx, secret.UUID)
	}
	if err != nil {
		return err
	}

	slugs := map[uuid.UUID]string{secret.UUID: secret.Slug()}
	tenantSlug := ""
	if secret.SubID == 0 {
		tenantSlug = secret.Tenant.Slug
		siblings, err := a.store.ListSecretsForTenant(ctx, secret.Tenant.UUID)
		if err != nil {
			return err
		}
		for _, sibling := range siblings {
			slugs[sibling.UUID] = sibling.Slug()
		}
	}

	samples := sumSamples(metrics, slugs, tenantSlug)
	document := renderMetrics(samples, labelsFor(secret.Tenant.Slug), nil)
	return a.store.SetSecretMetricsList(ctx, &secret.UUID, document)
}

// RebuildGlobalMetrics renders the all-tenants document. It carries a
// tenant label on every series and additionally exports node load and
// the configured attendee and meeting limits.
func (a *Aggregator) RebuildGlobalMetrics(ctx context.Context) error {
	secrets, err := a.store.ListSecrets(ctx)
	if err != nil {
		return err
	}
	metrics, err := a.store.ListMetrics(ctx)
	if err != nil {
		return err
	}
	nodes, err := a.store.ListNodes(ctx)
	if err != nil {
		return err
	}

	slugs := make(map[uuid.UUID]string, len(secrets))
	tenantOf := make(map[string]string, len(secrets))
	tenantSlugs := make(map[uuid.UUID]string)
	for _, secret := range secrets {
		slugs[secret.UUID] = secret.Slug()
		tenantOf[secret.Slug()] = secret.Tenant.Slug
		if secret.SubID == 0 {
			tenantSlugs[secret.Tenant.UUID] = secret.Tenant.Slug
		}
	}

	samples := make(map[string]map[string]int64, len(store.MetricNames))
	for _, metric := range metrics {
		slug, known := slugs[metric.SecretUUID]
		if !known {
			continue
		}
		bySlug := samples[metric.Name]
		if bySlug == nil {
			bySlug = make(map[string]int64)
			samples[metric.Name] = bySlug
		}
		bySlug[slug] += metric.Value
		// Fold every tenant sample into the tenant-wide slug as well,
		// unless the sample already belongs to it.
		tenantUUID := tenantUUIDOf(secrets, metric.SecretUUID)
		if tenantSlug, ok := tenantSlugs[tenantUUID]; ok && tenantSlug != slug {
			bySlug[tenantSlug] += metric.Value
		}
	}

	var extra strings.Builder
	writeNodeLoad(&extra, nodes)
	writeLimits(&extra, secrets)

	document := renderMetrics(samples, func(slug string) string {
		return sampleLabels(tenantOf[slug], slug)
	}, &extra)
	return a.store.SetSecretMetricsList(ctx, nil, document)
}

// RebuildAllMetrics refreshes every per-secret document and the global
// one.
func (a *Aggregator) RebuildAllMetrics(ctx context.Context) {
	secrets, err := a.store.ListSecrets(ctx)
	if err != nil {
		a.logger.WithError(err).Error("Failed to list secrets for metrics rebuild")
		return
	}
	for _, secret := range secrets {
		if err := a.RebuildSecretMetrics(ctx, secret); err != nil {
			a.logger.WithError(err).WithField("secret", secret.Slug()).
				Warn("Failed to rebuild secret metrics")
		}
	}
	if err := a.RebuildGlobalMetrics(ctx); err != nil {
		a.logger.WithError(err).Error("Failed to rebuild global metrics")
	}
}

// sampleLabels renders the label set of one series. The tenant-wide
// slug carries only the tenant label, sub-ID slugs add a secret label.
func sampleLabels(tenantSlug, slug string) string {
	if slug == tenantSlug {
		return fmt.Sprintf(`{tenant=%q}`, tenantSlug)
	}
	return fmt.Sprintf(`{tenant=%q,secret=%q}`, tenantSlug, slug)
}

func labelsFor(tenantSlug string) func(slug string) string {
	return func(slug string) string {
		return sampleLabels(tenantSlug, slug)
	}
}

func tenantUUIDOf(secrets []*store.Secret, secretUUID uuid.UUID) uuid.UUID {
	for _, secret := range secrets {
		if secret.UUID == secretUUID {
			return secret.Tenant.UUID
		}
	}
	return uuid.Nil
}

// sumSamples collapses node-level rows into per-slug totals. Samples of
// any mapped secret also accumulate under tenantSlug when it is set.
func sumSamples(metrics []*store.Metric, slugs map[uuid.UUID]string, tenantSlug string) map[string]map[string]int64 {
	samples := make(map[string]map[string]int64)
	for _, metric := range metrics {
		slug, known := slugs[metric.SecretUUID]
		if !known && tenantSlug == "" {
			continue
		}
		bySlug := samples[metric.Name]
		if bySlug == nil {
			bySlug = make(map[string]int64)
			samples[metric.Name] = bySlug
		}
		if known && slug != tenantSlug {
			bySlug[slug] += metric.Value
		}
		if tenantSlug != "" {
			bySlug[tenantSlug] += metric.Value
		}
	}
	return samples
}

// renderMetrics emits the document in the fixed metric order with
// sorted slugs, so successive rebuilds of unchanged data are
// byte-identical.
func renderMetrics(samples map[string]map[string]int64, labels func(slug string) string, extra *strings.Builder) string {
	var b strings.Builder
	for _, name := range store.MetricNames {
		bySlug := samples[name]
		if len(bySlug) == 0 {
			continue
		}
		kind := "counter"
		if store.MetricGauges[name] {
			kind = "gauge"
		}
		fmt.Fprintf(&b, "# HELP %s%s %s\n", metricPrefix, name, store.MetricHelp[name])
		fmt.Fprintf(&b, "# TYPE %s%s %s\n", metricPrefix, name, kind)

		slugs := make([]string, 0, len(bySlug))
		for slug := range bySlug {
			slugs = append(slugs, slug)
		}
		sort.Strings(slugs)
		for _, slug := range slugs {
			fmt.Fprintf(&b, "%s%s%s %d\n", metricPrefix, name, labels(slug), bySlug[slug])
		}
	}
	if extra != nil {
		b.WriteString(extra.String())
	}
	return b.String()
}

// writeNodeLoad emits the node load series. The family keeps the
// upstream bbb_node_load name that dashboards scrape, not the b3lb_
// prefix of the per-secret families.
func writeNodeLoad(b *strings.Builder, nodes []*store.Node) {
	if len(nodes) == 0 {
		return
	}
	b.WriteString("# HELP bbb_node_load Synthetic node load\n")
	b.WriteString("# TYPE bbb_node_load gauge\n")
	sorted := make([]*store.Node, len(nodes))
	copy(sorted, nodes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Slug < sorted[j].Slug })
	for _, node := range sorted {
		fmt.Fprintf(b, "bbb_node_load{slug=%q,cluster=%q} %d\n",
			node.Slug, node.Cluster.Name, node.Load())
	}
}

func writeLimits(b *strings.Builder, secrets []*store.Secret) {
	sorted := make([]*store.Secret, len(secrets))
	copy(sorted, secrets)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Slug() < sorted[j].Slug() })

	type limit struct {
		name string
		get  func(*store.Secret) int
	}
	for _, l := range []limit{
		{"attendee_limit", func(s *store.Secret) int { return s.AttendeeLimit }},
		{"meeting_limit", func(s *store.Secret) int { return s.MeetingLimit }},
	} {
		fmt.Fprintf(b, "# HELP %ssecret_%s Configured %s of the secret (0 = unlimited)\n",
			metricPrefix, l.name, strings.ReplaceAll(l.name, "_", " "))
		fmt.Fprintf(b, "# TYPE %ssecret_%s gauge\n", metricPrefix, l.name)
		for _, secret := range sorted {
			fmt.Fprintf(b, "%ssecret_%s%s %d\n",
				metricPrefix, l.name, sampleLabels(secret.Tenant.Slug, secret.Slug()), l.get(secret))
		}
	}

	type tenantLimit struct {
		name string
		get  func(*store.Secret) int
	}
	seen := make(map[string]bool)
	for _, l := range []tenantLimit{
		{"attendee_limit", func(s *store.Secret) int { return s.Tenant.AttendeeLimit }},
		{"meeting_limit", func(s *store.Secret) int { return s.Tenant.MeetingLimit }},
	} {
		fmt.Fprintf(b, "# HELP %stenant_%s Configured %s of the tenant (0 = unlimited)\n",
			metricPrefix, l.name, strings.ReplaceAll(l.name, "_", " "))
		fmt.Fprintf(b, "# TYPE %stenant_%s gauge\n", metricPrefix, l.name)
		for k := range seen {
			delete(seen, k)
		}
		for _, secret := range sorted {
			if seen[secret.Tenant.Slug] {
				continue
			}
			seen[secret.Tenant.Slug] = true
			fmt.Fprintf(b, "%stenant_%s{tenant=%q} %d\n",
				metricPrefix, l.name, secret.Tenant.Slug, l.get(secret))
		}
	}
}
