// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package vartype

import (
	"encoding/json"
	"testing"
)

func TestVariable(t *testing.T) {
	t.Run("unset variable is unknown", func(t *testing.T) {
		var v VarFloat64
		if v.IsSet() {
			t.Error("expected variable to be unset")
		}
		if v.String() != Unknown {
			t.Errorf("expected %q, got %q", Unknown, v.String())
		}
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal variable: %s", err)
		}
		if string(data) != `"unknown"` {
			t.Errorf("expected JSON %q, got %q", `"unknown"`, data)
		}
	})
	t.Run("set variable returns its value", func(t *testing.T) {
		v := NewVariable(48.82)
		if !v.IsSet() {
			t.Error("expected variable to be set")
		}
		if v.Value() != 48.82 {
			t.Errorf("expected 48.82, got %f", v.Value())
		}
		if v.String() != "48.82" {
			t.Errorf("expected 48.82, got %s", v.String())
		}
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal variable: %s", err)
		}
		if string(data) != "48.82" {
			t.Errorf("expected JSON 48.82, got %s", data)
		}
	})
	t.Run("reset variable is unknown again", func(t *testing.T) {
		var v VarString
		v.Set("online")
		v.Reset()
		if v.IsSet() || v.Value() != "" {
			t.Error("expected variable to be reset")
		}
	})
}
