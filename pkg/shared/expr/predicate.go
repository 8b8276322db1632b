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

// Package expr compiles join predicates written as expressions over the two
// joined values, e.g. `left.id == right.id` or
// `json(left).user == json(right).user`.
package expr

import (
	"fmt"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
	"go.uber.org/zap"
)

const (
	leftVar  = "left"
	rightVar = "right"
)

// Predicate is a compiled join predicate.
type Predicate struct {
	expression string
	program    *vm.Program
}

// Compile compiles a predicate expression. The variables left and right
// hold the two values of a pair.
func Compile(expression string) (*Predicate, error) {
	program, err := expr.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("unable to compile expression '%s': %w", expression, err)
	}
	return &Predicate{expression: expression, program: program}, nil
}

// String returns the source expression.
func (p *Predicate) String() string {
	return p.expression
}

// Eval evaluates the predicate for one pair.
func (p *Predicate) Eval(left, right any) (bool, error) {
	env := funcMap()
	env[leftVar] = left
	env[rightVar] = right
	result, err := expr.Run(p.program, env)
	if err != nil {
		return false, fmt.Errorf("unable to evaluate expression '%s': %w", p.expression, err)
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("unable to cast expression result '%v' to bool", result)
	}
	return b, nil
}

// Bind adapts p to the predicate signature of a join. A pair whose
// evaluation fails does not match; the failure is logged.
func Bind[L, R any](p *Predicate, log *zap.SugaredLogger) func(L, R) bool {
	return func(l L, r R) bool {
		ok, err := p.Eval(l, r)
		if err != nil {
			log.Errorw("Join predicate failed", zap.String("expression", p.expression), zap.Error(err))
			return false
		}
		return ok
	}
}
