// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package schema

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// templateCache memoizes generic compound instantiations keyed by
// (compound name, bound argument tuple), per spec.md §9's "instantiate on
// demand, cache instantiations in the schema" design note.
type templateCache struct {
	cache *lru.Cache[string, *Compound]
}

func newTemplateCache(size int) *templateCache {
	c, err := lru.New[string, *Compound](size)
	if err != nil {
		// Only returns an error for a non-positive size, which newTemplateCache
		// never passes.
		panic(err)
	}
	return &templateCache{cache: c}
}

func templateKey(name string, args []string) string {
	return name + "<" + strings.Join(args, ",") + ">"
}

// Instantiate returns the concrete compound for a generic compound bound to
// args (one argument type name per template parameter), instantiating and
// caching it on first use.
func (s *Schema) Instantiate(generic *Compound, args []string) (*Compound, error) {
	if !generic.Generic {
		return generic, nil
	}
	if len(args) != len(generic.TemplateParams) {
		return nil, &ErrSchema{
			Kind: "compound", Name: generic.Name, Pos: "template instantiation",
			Err: fmt.Errorf("%w: expected %d template argument(s), got %d", ErrSchemaMalformed, len(generic.TemplateParams), len(args)),
		}
	}

	key := templateKey(generic.Name, args)
	if inst, ok := s.tplCache.cache.Get(key); ok {
		return inst, nil
	}

	binding := make(map[string]string, len(args))
	for i, p := range generic.TemplateParams {
		binding[p] = args[i]
	}

	inst := &Compound{
		Name:             key,
		Parent:           generic.Parent,
		BitfieldMSBFirst: generic.BitfieldMSBFirst,
		Fields:           make([]Field, len(generic.Fields)),
	}
	for i, f := range generic.Fields {
		if f.Kind == KindTemplateParam {
			boundType := binding[f.TplParam]
			if bt, ok := s.Basics[boundType]; ok {
				f.Kind, f.Basic, f.TplParam = KindBasic, bt, ""
			} else if en, ok := s.Enums[boundType]; ok {
				f.Kind, f.Enum, f.TplParam = KindEnum, en, ""
			} else if c, ok := s.Compounds[boundType]; ok {
				f.Kind, f.Compound, f.TplParam = KindCompound, c, ""
			} else {
				return nil, &ErrSchema{Kind: "field", Name: generic.Name, Pos: "field " + f.Name, Err: ErrUnknownType}
			}
		}
		inst.Fields[i] = f
	}

	s.tplCache.cache.Add(key, inst)
	return inst, nil
}
