package route

import (
	"reflect"
	"testing"
)

func TestMetaFromMap(t *testing.T) {
	tests := []struct {
		name         string
		bag          map[string]any
		wantCache    bool
		wantHidden   bool
		wantPinned   bool
		wantRejected []string
	}{
		{
			name:      "empty bag uses defaults",
			bag:       nil,
			wantCache: true,
		},
		{
			name:      "explicit opt-out",
			bag:       map[string]any{"cacheEligible": false},
			wantCache: false,
		},
		{
			name:      "explicit opt-in",
			bag:       map[string]any{"cacheEligible": true},
			wantCache: true,
		},
		{
			name:       "hidden and pinned",
			bag:        map[string]any{"hidden": true, "pinned": true},
			wantCache:  true,
			wantHidden: true,
			wantPinned: true,
		},
		{
			name:      "synonyms are not flags",
			bag:       map[string]any{"keepAlive": false, "affix": true},
			wantCache: true,
		},
		{
			name:         "wrong types are rejected",
			bag:          map[string]any{"cacheEligible": "no", "pinned": 1, "title": 3},
			wantCache:    true,
			wantRejected: []string{"cacheEligible", "pinned", "title"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, rejected := MetaFromMap(tt.bag)
			if m.CacheEligible() != tt.wantCache {
				t.Errorf("CacheEligible() = %v, want %v", m.CacheEligible(), tt.wantCache)
			}
			if m.Hidden != tt.wantHidden {
				t.Errorf("Hidden = %v, want %v", m.Hidden, tt.wantHidden)
			}
			if m.Pinned != tt.wantPinned {
				t.Errorf("Pinned = %v, want %v", m.Pinned, tt.wantPinned)
			}
			if !reflect.DeepEqual(rejected, tt.wantRejected) {
				t.Errorf("rejected = %v, want %v", rejected, tt.wantRejected)
			}
		})
	}
}

func TestMetaFromMapKeepsSynonymsAsExtra(t *testing.T) {
	m, _ := MetaFromMap(map[string]any{"keepAlive": false})
	if v, ok := m.Extra["keepAlive"]; !ok || v != false {
		t.Errorf("Extra[keepAlive] = %v, %v", v, ok)
	}
}

func TestMetaCloneIsDeep(t *testing.T) {
	orig := Meta{
		Title: "Users",
		Extra: map[string]any{
			"breadcrumb": []any{"home", map[string]any{"label": "users"}},
			"perm":       map[string]any{"read": true},
		},
	}
	clone := orig.Clone()

	orig.Title = "changed"
	orig.Extra["perm"].(map[string]any)["read"] = false
	orig.Extra["breadcrumb"].([]any)[1].(map[string]any)["label"] = "changed"
	orig.Extra["new"] = 1

	if clone.Title != "Users" {
		t.Errorf("Title aliased: %q", clone.Title)
	}
	if clone.Extra["perm"].(map[string]any)["read"] != true {
		t.Error("nested map aliased")
	}
	if clone.Extra["breadcrumb"].([]any)[1].(map[string]any)["label"] != "users" {
		t.Error("nested slice aliased")
	}
	if _, ok := clone.Extra["new"]; ok {
		t.Error("top-level Extra aliased")
	}
}

func TestMetaMapRoundTrip(t *testing.T) {
	bag := map[string]any{
		"title":         "Roles",
		"cacheEligible": false,
		"pinned":        true,
		"order":         3,
	}
	m, rejected := MetaFromMap(bag)
	if len(rejected) != 0 {
		t.Fatalf("unexpected rejected keys %v", rejected)
	}
	if got := m.Map(); !reflect.DeepEqual(got, bag) {
		t.Errorf("Map() = %v, want %v", got, bag)
	}
}

func TestTargetNormalizedPath(t *testing.T) {
	tests := []struct {
		target Target
		want   string
	}{
		{Target{FullPath: "/users?page=2"}, "/users"},
		{Target{FullPath: "/users"}, "/users"},
		{Target{FullPath: "/users?page=2", Path: "/people"}, "/people"},
	}
	for _, tt := range tests {
		if got := tt.target.NormalizedPath(); got != tt.want {
			t.Errorf("NormalizedPath(%+v) = %q, want %q", tt.target, got, tt.want)
		}
	}
}
