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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/sweepflow/pkg/shared/logging"
)

func TestPredicate_Eval(t *testing.T) {
	t.Run("test equal values", func(t *testing.T) {
		p, err := Compile(`left == right`)
		require.NoError(t, err)
		assert.Equal(t, "left == right", p.String())
		ok, err := p.Eval(1, 1)
		assert.NoError(t, err)
		assert.True(t, ok)
		ok, err = p.Eval(1, 2)
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("test map fields", func(t *testing.T) {
		p, err := Compile(`left.id == right.id`)
		require.NoError(t, err)
		ok, err := p.Eval(map[string]any{"id": "a"}, map[string]any{"id": "a"})
		assert.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("test json payloads", func(t *testing.T) {
		p, err := Compile(`json(left).user == json(right).user`)
		require.NoError(t, err)
		ok, err := p.Eval(`{"user": "x", "n": 1}`, []byte(`{"user": "x"}`))
		assert.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("test invalid expression", func(t *testing.T) {
		_, err := Compile(`ab\na`)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unable to compile expression")
	})

	t.Run("test non bool result", func(t *testing.T) {
		p, err := Compile(`left`)
		require.NoError(t, err)
		_, err = p.Eval("a", "b")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unable to cast expression result")
	})
}

func TestBind(t *testing.T) {
	p, err := Compile(`int(left) < int(right)`)
	require.NoError(t, err)
	less := Bind[string, string](p, logging.NewNopLogger())
	assert.True(t, less("1", "2"))
	assert.False(t, less("2", "1"))
	// evaluation failures do not match
	assert.False(t, less("x", "1"))
}

func TestFuncs(t *testing.T) {
	t.Run("test json", func(t *testing.T) {
		assert.Nil(t, _json(nil))
		assert.Equal(t, "b", _json([]byte(`{"a": "b"}`))["a"])
		assert.Panics(t, func() { _json("abc") })
		assert.Panics(t, func() { _json(222) })
	})

	t.Run("test int", func(t *testing.T) {
		assert.Equal(t, 1, _int([]byte("1")))
		assert.Equal(t, 1, _int(float64(1.2)))
		assert.Equal(t, 3, _int(int64(3)))
		assert.Panics(t, func() { _int("") })
		assert.Panics(t, func() { _int(time.Second) })
	})

	t.Run("test string", func(t *testing.T) {
		assert.Equal(t, "", _string(nil))
		assert.Equal(t, "a", _string([]byte("a")))
		assert.Equal(t, "444", _string(444))
	})
}
