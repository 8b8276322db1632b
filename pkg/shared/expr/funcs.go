/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package expr

import (
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

// funcMap returns the helpers available to every predicate.
func funcMap() map[string]any {
	return map[string]any{
		"json":   _json,
		"int":    _int,
		"string": _string,
	}
}

func _int(v any) int {
	switch w := v.(type) {
	case []byte:
		return _int(string(w))
	case string:
		i, err := strconv.Atoi(w)
		if err != nil {
			panic(fmt.Errorf("cannot convert %q to int", w))
		}
		return i
	case float64:
		return int(w)
	case int:
		return w
	case int64:
		return int(w)
	default:
		panic(fmt.Errorf("cannot convert %v to int", v))
	}
}

func _string(v any) string {
	switch w := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(w)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func _json(v any) map[string]any {
	var raw []byte
	switch w := v.(type) {
	case nil:
		return nil
	case []byte:
		raw = w
	case string:
		raw = []byte(w)
	default:
		panic(fmt.Errorf("cannot convert %T to object", v))
	}
	x := make(map[string]any)
	if err := json.Unmarshal(raw, &x); err != nil {
		panic(fmt.Errorf("cannot convert %q to object: %w", raw, err))
	}
	return x
}
