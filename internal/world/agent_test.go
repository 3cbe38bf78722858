package world

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/hexfleet/server/internal/geo"
	"github.com/hexfleet/server/internal/identity"
)

func TestSnapshotEqual(t *testing.T) {
	a := AgentSnapshot{
		{ID: "veh0", Position: geo.LatLon{Lat: 1, Lon: 2}, Heading: 90, Color: identity.Color{R: 1}},
		{ID: "veh1", Position: geo.LatLon{Lat: 3, Lon: 4}},
	}
	b := append(AgentSnapshot(nil), a...)
	if !a.Equal(b) {
		t.Fatal("copies compared unequal")
	}

	tests := map[string]func(s AgentSnapshot) AgentSnapshot{
		"heading": func(s AgentSnapshot) AgentSnapshot { s[0].Heading = 91; return s },
		"speed":   func(s AgentSnapshot) AgentSnapshot { s[1].Speed = 0.1; return s },
		"colour":  func(s AgentSnapshot) AgentSnapshot { s[0].Color.G = 9; return s },
		"order":   func(s AgentSnapshot) AgentSnapshot { s[0], s[1] = s[1], s[0]; return s },
		"length":  func(s AgentSnapshot) AgentSnapshot { return s[:1] },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := mutate(append(AgentSnapshot(nil), a...))
			if a.Equal(c) {
				t.Fatal("difference not detected")
			}
		})
	}
	if !AgentSnapshot(nil).Equal(AgentSnapshot{}) {
		t.Fatal("nil and empty snapshots differ")
	}
}

func TestIDsAndPoint(t *testing.T) {
	s := AgentSnapshot{{ID: "b", Position: geo.LatLon{Lat: 48.8, Lon: 2.3}}, {ID: "a"}}
	if got := s.IDs(); !reflect.DeepEqual(got, []string{"b", "a"}) {
		t.Fatalf("IDs = %v", got)
	}
	if p := s[0].Point(); p.X != 48.8 || p.Y != 2.3 {
		t.Fatalf("Point = %v", p)
	}
}

func TestAgentJSON(t *testing.T) {
	raw, err := json.Marshal(Agent{ID: "veh0", Speed: 13.9, Color: identity.Color{R: 0xab, G: 0x01, B: 0xff}})
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	json.Unmarshal(raw, &m)
	if m["color"] != "#ab01ff" || m["id"] != "veh0" {
		t.Fatalf("json = %s", raw)
	}
}
