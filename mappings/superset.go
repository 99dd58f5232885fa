/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package mappings

import "fmt"

// SupersetError reports the first server mapping missing from the client.
type SupersetError struct {
	Class  string
	Member string
}

func (e *SupersetError) Error() string {
	if e.Member == "" {
		return fmt.Sprintf("client mappings are not a strict superset of the server mappings: class %s differs", e.Class)
	}
	return fmt.Sprintf("client mappings are not a strict superset of the server mappings: %s %s is missing", e.Class, e.Member)
}

// CheckSuperset verifies that every class, field, and method of server is
// mapped identically in client.
func CheckSuperset(client, server *File) error {
	for _, cs := range server.classes {
		cc, ok := client.byName[cs.Named]
		if !ok || cc.Obf != cs.Obf {
			return &SupersetError{Class: cs.Named}
		}

		fields := make(map[string]struct{}, len(cc.Fields))
		for _, f := range cc.Fields {
			fields[f.key()] = struct{}{}
		}
		for _, f := range cs.Fields {
			if _, ok := fields[f.key()]; !ok {
				return &SupersetError{Class: cs.Named, Member: f.key()}
			}
		}

		methods := make(map[string]struct{}, len(cc.Methods))
		for _, m := range cc.Methods {
			methods[m.key()] = struct{}{}
		}
		for _, m := range cs.Methods {
			if _, ok := methods[m.key()]; !ok {
				return &SupersetError{Class: cs.Named, Member: m.key()}
			}
		}
	}
	return nil
}
