package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"voxelmind.ai/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	helloSchema := compile("hello.schema.json")
	welcomeSchema := compile("welcome.schema.json")
	obsSchema := compile("obs.schema.json")
	actSchema := compile("act.schema.json")

	var hello any
	_ = json.Unmarshal([]byte(`{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "session_id":"weekend_1",
	  "role":"survivor_0",
	  "agent_name":"Aria",
	  "capabilities":{"info_channel":true,"max_queue":8}
	}`), &hello)
	validate(helloSchema, hello)

	var welcome any
	_ = json.Unmarshal([]byte(`{
	  "type":"WELCOME",
	  "protocol_version":"1.0",
	  "session_id":"weekend_1",
	  "agent_id":"A1",
	  "resume_token":"resume_weekend_1_123",
	  "world_params":{
	    "tick_rate_hz":10,
	    "boundary_radius":50,
	    "spawn_pos":[0.5,4.0,0.5],
	    "seed":1337
	  }
	}`), &welcome)
	validate(welcomeSchema, welcome)

	var obs any
	_ = json.Unmarshal([]byte(`{
	  "type":"OBS",
	  "protocol_version":"1.0",
	  "tick":42,
	  "agent_id":"A1",
	  "self":{"pos":[0.5,4.0,0.5],"yaw":90,"pitch":0,"hp":20,"food":20,"alive":true},
	  "inventory":[{"item":"log","count":3}],
	  "entities":[{"id":"E7","kind":"Pig","pos":[3.0,4.0,1.0]}],
	  "events":[{"kind":"chat","actor":"A2","text":"hello"}],
	  "info":{"XPos":0.5,"YPos":4.0,"ZPos":0.5,"Life":20.0,"Food":20.0}
	}`), &obs)
	validate(obsSchema, obs)

	var act any
	_ = json.Unmarshal([]byte(`{
	  "type":"ACT",
	  "protocol_version":"1.0",
	  "act_id":"ACT_1",
	  "tick":42,
	  "agent_id":"A1",
	  "commands":["move 1","move 1","move 0"]
	}`), &act)
	validate(actSchema, act)
}

func TestObsMsg_Empty(t *testing.T) {
	raw := []byte(`{"type":"OBS","protocol_version":"1.0","tick":7,"agent_id":"A1"}`)
	var obs protocol.ObsMsg
	if err := json.Unmarshal(raw, &obs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !obs.Empty() {
		t.Fatalf("frame without self block should be empty")
	}
}

func TestParseInfo_Overrides(t *testing.T) {
	raw := json.RawMessage(`{"XPos":1.5,"YPos":4.0,"ZPos":-2.5,"Yaw":270.0,"Life":12.0,"Food":6.0,"inventory":[{"item":"stone","count":4}]}`)
	info, err := protocol.ParseInfo(raw)
	if err != nil {
		t.Fatalf("parse info: %v", err)
	}
	if info.Pos == nil || info.Pos[0] != 1.5 || info.Pos[2] != -2.5 {
		t.Fatalf("unexpected pos: %+v", info.Pos)
	}
	if info.Yaw == nil || *info.Yaw != 270.0 {
		t.Fatalf("unexpected yaw: %+v", info.Yaw)
	}
	if info.HP == nil || *info.HP != 12.0 {
		t.Fatalf("unexpected hp: %+v", info.HP)
	}
	if len(info.Inventory) != 1 || info.Inventory[0].Item != "stone" {
		t.Fatalf("unexpected inventory: %+v", info.Inventory)
	}

	// Partial position is ignored rather than guessed.
	part, err := protocol.ParseInfo(json.RawMessage(`{"XPos":1.0}`))
	if err != nil {
		t.Fatalf("parse partial: %v", err)
	}
	if part.Pos != nil {
		t.Fatalf("partial position should not produce a pos")
	}

	empty, err := protocol.ParseInfo(nil)
	if err != nil {
		t.Fatalf("parse empty: %v", err)
	}
	if empty.Pos != nil || empty.HP != nil {
		t.Fatalf("empty info should have no fields")
	}
}
