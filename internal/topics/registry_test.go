package topics_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"terport/internal/terport"
	"terport/internal/topics"
)

func titles(specs []terport.TopicSpec) []string {
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = s.Title
	}
	return out
}

func TestVersionUpdateSelectsReleasesCrossed(t *testing.T) {
	cases := []struct {
		name    string
		last    string
		current string
		want    []string
	}{
		{name: "1.0 patch to 3.9", last: "1.0.2", current: "3.9.4", want: []string{"Pain and Inflammation"}},
		{name: "skipped release", last: "3.8", current: "4.0", want: []string{"Pain and Inflammation"}},
		{name: "exact release label", last: "1.0", current: "3.9", want: []string{"Pain and Inflammation"}},
		{name: "patch inside release", last: "3.9.0", current: "3.9.1", want: nil},
		{name: "patch inside first release", last: "1.0.0", current: "1.0.1", want: nil},
		{name: "past the last release", last: "3.9.4", current: "4.0.0", want: nil},
		{name: "downgrade", last: "3.9.4", current: "1.0.3", want: nil},
		{name: "before the catalog", last: "0.9", current: "0.9.5", want: nil},
		{name: "from before the catalog", last: "0.9", current: "1.0", want: []string{
			"Myrcene", "Limonene", "Linalool", "Alpha-Pinene", "Beta-Caryophyllene", "Sleep and Relaxation",
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			registry, err := topics.New(tc.current)
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			got := registry.Topics(terport.TriggerVersionUpdate, tc.last)
			if len(tc.want) == 0 {
				if len(got) != 0 {
					t.Fatalf("expected no topics, got %v", titles(got))
				}
				return
			}
			if diff := cmp.Diff(tc.want, titles(got)); diff != "" {
				t.Fatalf("topics mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestVersionUpdateWithoutHistoryCoversCatalogUpToCurrent(t *testing.T) {
	registry, err := topics.New("1.0.4")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	got := titles(registry.Topics(terport.TriggerVersionUpdate, ""))
	if len(got) != 6 {
		t.Fatalf("expected the six 1.0 topics, got %v", got)
	}
	for _, title := range got {
		if title == "Pain and Inflammation" {
			t.Fatalf("3.9 topic leaked into a 1.0 deployment: %v", got)
		}
	}
}

func TestInitialYieldsFullCatalogInOrder(t *testing.T) {
	registry, err := topics.New("3.9.4")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	got := titles(registry.Topics(terport.TriggerInitial, ""))
	want := []string{
		"Myrcene",
		"Limonene",
		"Linalool",
		"Alpha-Pinene",
		"Beta-Caryophyllene",
		"Sleep and Relaxation",
		"Pain and Inflammation",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("initial topics mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(got, titles(registry.Topics(terport.TriggerManual, "3.9.4"))); diff != "" {
		t.Fatalf("manual topics should match initial (-initial +manual):\n%s", diff)
	}
}

func TestTopicsAreDeterministicAndIsolated(t *testing.T) {
	registry, err := topics.New("3.9.4")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	first := registry.Topics(terport.TriggerInitial, "")
	first[0].Title = "mutated"
	first[0].ResearchQuestions[0] = "mutated"

	var wg sync.WaitGroup
	results := make([][]terport.TopicSpec, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = registry.Topics(terport.TriggerInitial, "")
		}(i)
	}
	wg.Wait()
	for _, result := range results {
		if diff := cmp.Diff(results[0], result); diff != "" {
			t.Fatalf("concurrent results differ:\n%s", diff)
		}
	}
	if results[0][0].Title != "Myrcene" || strings.HasPrefix(results[0][0].ResearchQuestions[0], "mutated") {
		t.Fatalf("caller mutation leaked into registry: %+v", results[0][0])
	}
}

func TestCatalogValidation(t *testing.T) {
	cases := map[string]string{
		"empty":           "releases: []",
		"missing version": "releases:\n  - topics:\n      - title: A",
		"duplicate title": "releases:\n  - version: \"1\"\n    topics:\n      - title: A\n  - version: \"2\"\n    topics:\n      - title: a",
		"untitled":        "releases:\n  - version: \"1\"\n    topics:\n      - category: x",
		"out of order":    "releases:\n  - version: \"2\"\n    topics:\n      - title: A\n  - version: \"1.5\"\n    topics:\n      - title: B",
		"bad yaml":        "releases: [",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := topics.NewFromCatalog([]byte(data), "1"); err == nil {
				t.Fatal("expected catalog error")
			}
		})
	}
}

func TestCategoryLabel(t *testing.T) {
	registry, err := topics.New("1.0")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if got := registry.CategoryLabel("wellness-effect"); got != "Wellness Effect" {
		t.Fatalf("unexpected label %q", got)
	}
	if got := registry.CategoryLabel(""); got != "" {
		t.Fatalf("expected empty label, got %q", got)
	}
}
