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

// Package config holds the construction time options of a query.
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/spaolacci/murmur3"
	"github.com/spf13/viper"

	"github.com/numaproj/sweepflow/pkg/shared/expr"
	"github.com/numaproj/sweepflow/pkg/sweeparea"
)

const (
	HashXX      = "xxhash"
	HashMurmur3 = "murmur3"

	EnvPrefix = "SWEEPFLOW"
)

var ErrInvalidOption = errors.New("invalid query option")

// QueryOptions are the recognized options of a query.
type QueryOptions struct {
	// WindowSize is the validity of a windowed element.
	WindowSize int64 `json:"windowSize" mapstructure:"windowSize"`
	// HashFn names the key hash of hash sweep areas and groupers.
	HashFn string `json:"hashFn" mapstructure:"hashFn"`
	// JoinPredicate is an expression over left and right. Empty accepts
	// every pair.
	JoinPredicate   string        `json:"joinPredicate" mapstructure:"joinPredicate"`
	ImplementorKind string        `json:"implementorKind" mapstructure:"implementorKind"`
	BucketCount     uint32        `json:"bucketCount" mapstructure:"bucketCount"`
	HeartbeatPeriod time.Duration `json:"heartbeatPeriod" mapstructure:"heartbeatPeriod"`
}

// Default returns the options used for every unset key.
func Default() QueryOptions {
	return QueryOptions{
		WindowSize:      1000,
		HashFn:          HashXX,
		ImplementorKind: sweeparea.Hash.String(),
		BucketCount:     64,
		HeartbeatPeriod: 100 * time.Millisecond,
	}
}

// Validate checks every option.
func (q QueryOptions) Validate() error {
	if q.WindowSize <= 0 {
		return fmt.Errorf("%w: windowSize must be positive, got %d", ErrInvalidOption, q.WindowSize)
	}
	if _, err := q.Hasher(); err != nil {
		return err
	}
	kind, err := q.Kind()
	if err != nil {
		return err
	}
	if kind == sweeparea.Hash && q.BucketCount == 0 {
		return fmt.Errorf("%w: bucketCount must be positive for hash sweep areas", ErrInvalidOption)
	}
	if q.HeartbeatPeriod <= 0 {
		return fmt.Errorf("%w: heartbeatPeriod must be positive, got %v", ErrInvalidOption, q.HeartbeatPeriod)
	}
	if _, err := q.Predicate(); err != nil {
		return err
	}
	return nil
}

// Kind returns the sweep area implementor.
func (q QueryOptions) Kind() (sweeparea.Kind, error) {
	k, err := sweeparea.ParseKind(q.ImplementorKind)
	if err != nil {
		return k, fmt.Errorf("%w: %w", ErrInvalidOption, err)
	}
	return k, nil
}

// Hasher returns the named string hash.
func (q QueryOptions) Hasher() (func(string) uint64, error) {
	switch strings.ToLower(q.HashFn) {
	case HashXX:
		return xxhash.Sum64String, nil
	case HashMurmur3:
		return func(s string) uint64 {
			return murmur3.Sum64([]byte(s))
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown hashFn %q", ErrInvalidOption, q.HashFn)
	}
}

// Predicate compiles the join predicate, nil when none is set.
func (q QueryOptions) Predicate() (*expr.Predicate, error) {
	if strings.TrimSpace(q.JoinPredicate) == "" {
		return nil, nil
	}
	p, err := expr.Compile(q.JoinPredicate)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOption, err)
	}
	return p, nil
}

// GlobalConfig holds the options loaded from a file, reloaded when the file
// changes.
type GlobalConfig struct {
	conf QueryOptions
	lock *sync.RWMutex
}

// Query returns the current options.
func (g *GlobalConfig) Query() QueryOptions {
	g.lock.RLock()
	defer g.lock.RUnlock()
	return g.conf
}

func newViper() *viper.Viper {
	v := viper.New()
	d := Default()
	v.SetDefault("windowSize", d.WindowSize)
	v.SetDefault("hashFn", d.HashFn)
	v.SetDefault("joinPredicate", d.JoinPredicate)
	v.SetDefault("implementorKind", d.ImplementorKind)
	v.SetDefault("bucketCount", d.BucketCount)
	v.SetDefault("heartbeatPeriod", d.HeartbeatPeriod)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func unmarshal(v *viper.Viper) (QueryOptions, error) {
	var q QueryOptions
	if err := v.Unmarshal(&q); err != nil {
		return q, fmt.Errorf("failed to unmarshal query options. %w", err)
	}
	if err := q.Validate(); err != nil {
		return q, err
	}
	return q, nil
}

// Load reads the query options from a YAML file. An empty path yields the
// defaults, overridden by SWEEPFLOW_ prefixed environment variables.
func Load(path string) (QueryOptions, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return QueryOptions{}, fmt.Errorf("failed to load configuration file. %w", err)
		}
	}
	return unmarshal(v)
}

// Watch loads the options from path and keeps them current. A reload that
// fails leaves the previous options in place and is reported to
// onErrorReloading.
func Watch(path string, onErrorReloading func(error)) (*GlobalConfig, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration file. %w", err)
	}
	conf, err := unmarshal(v)
	if err != nil {
		return nil, err
	}
	r := &GlobalConfig{conf: conf, lock: new(sync.RWMutex)}
	v.OnConfigChange(func(e fsnotify.Event) {
		cf, err := unmarshal(v)
		if err != nil {
			onErrorReloading(err)
			return
		}
		r.lock.Lock()
		defer r.lock.Unlock()
		r.conf = cf
	})
	v.WatchConfig()
	return r, nil
}
