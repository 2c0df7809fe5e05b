package attrpath

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

// decode unmarshals a JSON fixture the way the transport does.
func decode(t *testing.T, s string) any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		t.Fatalf("decoding fixture: %v", err)
	}
	return v
}

const statusFixture = `{
	"RemoteZoneInfo": [
		{"NV_Title": "Lounge", "ZonePosition": 1, "LiveTemp_oC": 21.5,
		 "Sensors": {"A1": {"Connected": true, "Battery_pc": 90}}},
		{"NV_Title": "Bed 1", "ZonePosition": 0, "LiveTemp_oC": 19.0, "Sensors": {}}
	],
	"UserAirconSettings": {"isOn": false, "EnabledZones": [true, false]},
	"SystemState": {"CpuId": null}
}`

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    []Segment
		wantErr bool
	}{
		{"fields", "Cloud.ConnectionState", []Segment{Field("Cloud"), Field("ConnectionState")}, false},
		{"index", "RemoteZoneInfo.[2].LiveTemp_oC", []Segment{Field("RemoteZoneInfo"), Index(2), Field("LiveTemp_oC")}, false},
		{"placeholder", "RemoteZoneInfo.[zone].NV_Title", []Segment{Field("RemoteZoneInfo"), Field("[zone]"), Field("NV_Title")}, false},
		{"empty", "", nil, true},
		{"empty segment", "a..b", nil, true},
		{"negative index", "a.[-1]", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.path)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPath) {
					t.Fatalf("Parse(%q) error = %v, want ErrInvalidPath", tt.path, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.path, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse(%q) = %#v, want %#v", tt.path, got, tt.want)
			}
			if Join(got) != tt.path {
				t.Errorf("Join(Parse(%q)) = %q", tt.path, Join(got))
			}
		})
	}
}

func TestIsPlaceholder(t *testing.T) {
	tests := map[string]bool{
		"[zone]":   true,
		"{sensor}": true,
		"[3]":      false,
		"zone":     false,
		"[]":       false,
		"{}":       false,
	}
	for in, want := range tests {
		if got := IsPlaceholder(in); got != want {
			t.Errorf("IsPlaceholder(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFlatten(t *testing.T) {
	doc := decode(t, statusFixture)

	leaves, err := Flatten(doc)
	if err != nil {
		t.Fatalf("Flatten() error = %v", err)
	}

	got := make(map[string]any, len(leaves))
	for _, l := range leaves {
		got[l.Path] = l.Value
	}

	want := map[string]any{
		"RemoteZoneInfo.[0].NV_Title":              "Lounge",
		"RemoteZoneInfo.[0].ZonePosition":          json.Number("1"),
		"RemoteZoneInfo.[0].LiveTemp_oC":           json.Number("21.5"),
		"RemoteZoneInfo.[0].Sensors.A1.Connected":  true,
		"RemoteZoneInfo.[0].Sensors.A1.Battery_pc": json.Number("90"),
		"RemoteZoneInfo.[1].NV_Title":              "Bed 1",
		"RemoteZoneInfo.[1].ZonePosition":          json.Number("0"),
		"RemoteZoneInfo.[1].LiveTemp_oC":           json.Number("19.0"),
		"UserAirconSettings.isOn":                  false,
		"UserAirconSettings.EnabledZones.[0]":      true,
		"UserAirconSettings.EnabledZones.[1]":      false,
		"SystemState.CpuId":                        nil,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Flatten() =\n%v\nwant\n%v", got, want)
	}
}

func TestFlatten_Deterministic(t *testing.T) {
	doc := decode(t, statusFixture)
	first, err := Flatten(doc)
	if err != nil {
		t.Fatalf("Flatten() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		again, _ := Flatten(doc) //nolint:errcheck // same document succeeded above
		if !reflect.DeepEqual(first, again) {
			t.Fatal("Flatten() order changed between calls")
		}
	}
}

func TestFlatten_ScalarRoot(t *testing.T) {
	for _, doc := range []any{nil, "text", 42.0, true} {
		if _, err := Flatten(doc); !errors.Is(err, ErrNotContainer) {
			t.Errorf("Flatten(%v) error = %v, want ErrNotContainer", doc, err)
		}
	}
}

func TestFlatten_UnaddressableKeys(t *testing.T) {
	doc := decode(t, `{
		"Alerts": {"v1.2": true, "[3]": "x", "{s}": 2, "": 3, "ok": 1},
		"a.b": true,
		"a": {"b": false}
	}`)

	var skipped []string
	var leaves []Leaf
	err := Walk(doc, func(path string, v any) {
		leaves = append(leaves, Leaf{Path: path, Value: v})
	}, func(e *KeyError) {
		if !errors.Is(e, ErrInvalidPath) {
			t.Errorf("KeyError %v does not wrap ErrInvalidPath", e)
		}
		skipped = append(skipped, e.Parent+"|"+e.Key)
	})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	wantSkipped := []string{"Alerts|", "Alerts|[3]", "Alerts|v1.2", "Alerts|{s}", "|a.b"}
	if !reflect.DeepEqual(skipped, wantSkipped) {
		t.Errorf("skipped = %v, want %v", skipped, wantSkipped)
	}

	wantLeaves := []Leaf{
		{Path: "Alerts.ok", Value: json.Number("1")},
		{Path: "a.b", Value: false},
	}
	if !reflect.DeepEqual(leaves, wantLeaves) {
		t.Errorf("leaves = %v, want %v", leaves, wantLeaves)
	}

	flat, err := Flatten(doc)
	if err != nil {
		t.Fatalf("Flatten() error = %v", err)
	}
	if !reflect.DeepEqual(flat, wantLeaves) {
		t.Errorf("Flatten() = %v, want %v", flat, wantLeaves)
	}
	for _, l := range flat {
		got, err := ResolvePath(doc, l.Path)
		if err != nil || !reflect.DeepEqual(got, l.Value) {
			t.Errorf("ResolvePath(%q) = %v, %v, want %v", l.Path, got, err, l.Value)
		}
	}
}

func TestCheckKey(t *testing.T) {
	tests := map[string]bool{
		"NV_Title": true,
		"3":        true,
		"[x":       true,
		"":         false,
		"v1.2":     false,
		"[3]":      false,
		"[-1]":     false,
		"[zone]":   false,
		"{sensor}": false,
	}
	for key, valid := range tests {
		err := CheckKey("Alerts", key)
		if (err == nil) != valid {
			t.Errorf("CheckKey(%q) error = %v, want valid %v", key, err, valid)
		}
		if err != nil && !errors.Is(err, ErrInvalidPath) {
			t.Errorf("CheckKey(%q) error = %v, want ErrInvalidPath", key, err)
		}
	}
}

func TestResolve_RoundTrip(t *testing.T) {
	doc := decode(t, statusFixture)
	leaves, err := Flatten(doc)
	if err != nil {
		t.Fatalf("Flatten() error = %v", err)
	}

	for _, l := range leaves {
		segs, err := Parse(l.Path)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", l.Path, err)
		}
		got, err := Resolve(doc, segs)
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", l.Path, err)
		}
		if !reflect.DeepEqual(got, l.Value) {
			t.Errorf("Resolve(%q) = %v, want %v", l.Path, got, l.Value)
		}
	}
}

func TestResolve_Missing(t *testing.T) {
	doc := decode(t, statusFixture)

	paths := []string{
		"RemoteZoneInfo.[5].NV_Title",
		"RemoteZoneInfo.[0].Missing",
		"Cloud.ConnectionState",
		"UserAirconSettings.isOn.Deeper",
		"RemoteZoneInfo.NV_Title",
	}
	for _, p := range paths {
		if _, err := ResolvePath(doc, p); !errors.Is(err, ErrPathNotFound) {
			t.Errorf("ResolvePath(%q) error = %v, want ErrPathNotFound", p, err)
		}
	}
}

func TestResolve_UnsubstitutedPlaceholder(t *testing.T) {
	doc := decode(t, statusFixture)
	_, err := ResolvePath(doc, "RemoteZoneInfo.[zone].NV_Title")
	if !errors.Is(err, ErrInvalidPath) {
		t.Errorf("ResolvePath() error = %v, want ErrInvalidPath", err)
	}
}

func TestSubstituteIndex(t *testing.T) {
	got := SubstituteIndex("RemoteZoneInfo.[zone].LiveTemp_oC", "[zone]", 3)
	if got != "RemoteZoneInfo.[3].LiveTemp_oC" {
		t.Fatalf("SubstituteIndex() = %q", got)
	}

	// The substituted path must equal the path Flatten emits for the same value.
	doc := decode(t, `{"RemoteZoneInfo": [{}, {}, {}, {"LiveTemp_oC": 20.5}]}`)
	leaves, err := Flatten(doc)
	if err != nil {
		t.Fatalf("Flatten() error = %v", err)
	}
	if len(leaves) != 1 || leaves[0].Path != got {
		t.Errorf("Flatten() = %v, want single leaf at %q", leaves, got)
	}
}

func TestSubstituteIndex_AllOccurrences(t *testing.T) {
	got := SubstituteIndex("a.[i].b.[i]", "[i]", 1)
	if got != "a.[1].b.[1]" {
		t.Errorf("SubstituteIndex() = %q", got)
	}
	if got := SubstituteIndex("a.[zone]x.b", "[zone]", 1); got != "a.[zone]x.b" {
		t.Errorf("SubstituteIndex() replaced a partial segment: %q", got)
	}
}

func TestSubstituteKey(t *testing.T) {
	got := SubstituteKey("RemoteZoneInfo.[0].Sensors.{sensor}.Connected", "{sensor}", "A1")
	if got != "RemoteZoneInfo.[0].Sensors.A1.Connected" {
		t.Errorf("SubstituteKey() = %q", got)
	}
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders("RemoteZoneInfo.[zone].Sensors.{sensor}.Connected")
	want := []string{"[zone]", "{sensor}"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Placeholders() = %v, want %v", got, want)
	}
	if got := Placeholders("Cloud.ConnectionState"); len(got) != 0 {
		t.Errorf("Placeholders() = %v, want none", got)
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		template string
		path     string
		want     bool
	}{
		{"RemoteZoneInfo.[zone].NV_Title", "RemoteZoneInfo.[4].NV_Title", true},
		{"RemoteZoneInfo.[zone].NV_Title", "RemoteZoneInfo.abc.NV_Title", false},
		{"RemoteZoneInfo.[zone].NV_Title", "RemoteZoneInfo.[4].LiveTemp_oC", false},
		{"RemoteZoneInfo.[zone].Sensors.{sensor}.Connected", "RemoteZoneInfo.[0].Sensors.A1.Connected", true},
		{"RemoteZoneInfo.[zone].Sensors.{sensor}.Connected", "RemoteZoneInfo.[0].Sensors.[1].Connected", false},
		{"Cloud.ConnectionState", "Cloud.ConnectionState", true},
		{"Cloud.ConnectionState", "Cloud.ConnectionState.x", false},
	}
	for _, tt := range tests {
		if got := Match(tt.template, tt.path); got != tt.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.template, tt.path, got, tt.want)
		}
	}
}

func TestKeys(t *testing.T) {
	doc := decode(t, statusFixture)
	keys, err := Keys(doc, []Segment{Field("RemoteZoneInfo"), Index(0), Field("Sensors")})
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	if !reflect.DeepEqual(keys, []string{"A1"}) {
		t.Errorf("Keys() = %v", keys)
	}
	if _, err := Keys(doc, []Segment{Field("RemoteZoneInfo")}); !errors.Is(err, ErrPathNotFound) {
		t.Errorf("Keys() on a sequence error = %v, want ErrPathNotFound", err)
	}
}

func TestLastSegmentAndCommandKey(t *testing.T) {
	if got := LastSegment("RemoteZoneInfo.[2].LiveTemp_oC"); got != "LiveTemp_oC" {
		t.Errorf("LastSegment() = %q", got)
	}
	if got := LastSegment("isOn"); got != "isOn" {
		t.Errorf("LastSegment() = %q", got)
	}
	if got := CommandKey("RemoteZoneInfo.[2].TemperatureSetpoint_Cool_oC"); got != "RemoteZoneInfo[2].TemperatureSetpoint_Cool_oC" {
		t.Errorf("CommandKey() = %q", got)
	}
	if got := CommandKey("UserAirconSettings.isOn"); got != "UserAirconSettings.isOn" {
		t.Errorf("CommandKey() = %q", got)
	}
}
