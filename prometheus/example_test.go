package prometheus_test

import (
	"context"
	"fmt"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/abczzz13/cfrealip"
	cfrealipprom "github.com/abczzz13/cfrealip/prometheus"
	"github.com/abczzz13/cfrealip/rangesource"
)

func counterValue(registry *prom.Registry, metricName string, labels map[string]string) float64 {
	families, err := registry.Gather()
	if err != nil {
		panic(err)
	}

	for _, family := range families {
		if family.GetName() != metricName {
			continue
		}
	metrics:
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if want, ok := labels[pair.GetName()]; ok && want != pair.GetValue() {
					continue metrics
				}
			}
			return metric.GetCounter().GetValue()
		}
	}

	panic(fmt.Sprintf("counter %q with labels %v not found", metricName, labels))
}

func cloudflareRequest() *http.Request {
	req := &http.Request{
		RemoteAddr: "173.245.48.10:443",
		Header:     make(http.Header),
	}
	req.Header.Set("CF-Connecting-IP", "203.0.113.45")
	return req
}

func ExampleWithMetrics() {
	resolver, err := cfrealip.New(cfrealipprom.WithMetrics())
	if err != nil {
		panic(err)
	}

	result := resolver.ResolveRequest(cloudflareRequest())
	fmt.Println(result.IP, result.Source)
	// Output: 203.0.113.45 cf_connecting_ip
}

func ExampleWithRegisterer() {
	registry := prom.NewRegistry()

	resolver, err := cfrealip.New(cfrealipprom.WithRegisterer(registry))
	if err != nil {
		panic(err)
	}

	resolver.ResolveRequest(cloudflareRequest())

	fmt.Printf("%.0f\n", counterValue(registry, "cfrealip_resolutions_total", map[string]string{
		"source":  cfrealip.SourceCFConnectingIP,
		"trusted": "true",
	}))
	// Output: 1
}

type fixedFetcher struct{}

func (fixedFetcher) Fetch(context.Context) (*cfrealip.RangeSet, error) {
	return cfrealip.MustFromLines([]string{"173.245.48.0/20"}, nil), nil
}

func ExampleNewWithRegisterer() {
	registry := prom.NewRegistry()

	metrics, err := cfrealipprom.NewWithRegisterer(registry)
	if err != nil {
		panic(err)
	}

	source, err := rangesource.NewSource(
		rangesource.WithFetcher(fixedFetcher{}),
		rangesource.WithMetrics(metrics),
	)
	if err != nil {
		panic(err)
	}
	if _, err := source.Refresh(context.Background()); err != nil {
		panic(err)
	}

	resolver, err := cfrealip.New(
		cfrealip.WithRanges(source),
		cfrealip.WithMetrics(metrics),
	)
	if err != nil {
		panic(err)
	}

	fmt.Println(resolver.Check(cloudflareRequest()))
	fmt.Printf("%.0f\n", counterValue(registry, "cfrealip_range_refresh_total", map[string]string{
		"result": rangesource.RefreshSuccess,
	}))
	// Output:
	// true
	// 1
}
