/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package mappings

import (
	"bufio"
	"io"
	"strings"
)

var primitives = map[string]string{
	"boolean": "Z",
	"byte":    "B",
	"char":    "C",
	"short":   "S",
	"int":     "I",
	"long":    "J",
	"float":   "F",
	"double":  "D",
	"void":    "V",
}

// WriteTSRG2 writes f reversed, mapping obfuscated names to readable ones.
// Method descriptors are expressed in obfuscated type names.
func (f *File) WriteTSRG2(w io.Writer) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("tsrg2 obf named\n")

	for _, c := range f.classes {
		bw.WriteString(internal(c.Obf))
		bw.WriteByte(' ')
		bw.WriteString(internal(c.Named))
		bw.WriteByte('\n')

		for _, fd := range c.Fields {
			bw.WriteByte('\t')
			bw.WriteString(fd.Obf)
			bw.WriteByte(' ')
			bw.WriteString(f.descriptor(fd.Type))
			bw.WriteByte(' ')
			bw.WriteString(fd.Named)
			bw.WriteByte('\n')
		}
		for _, m := range c.Methods {
			bw.WriteByte('\t')
			bw.WriteString(m.Obf)
			bw.WriteByte(' ')
			bw.WriteString(f.methodDescriptor(m))
			bw.WriteByte(' ')
			bw.WriteString(m.Named)
			bw.WriteByte('\n')
		}
	}
	return bw.Flush()
}

func (f *File) methodDescriptor(m Method) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, p := range m.Params {
		sb.WriteString(f.descriptor(p))
	}
	sb.WriteByte(')')
	sb.WriteString(f.descriptor(m.Return))
	return sb.String()
}

// descriptor converts a readable Java type name to a JVM descriptor in
// obfuscated names.
func (f *File) descriptor(javaType string) string {
	dims := 0
	for strings.HasSuffix(javaType, "[]") {
		javaType = strings.TrimSuffix(javaType, "[]")
		dims++
	}
	prefix := strings.Repeat("[", dims)
	if p, ok := primitives[javaType]; ok {
		return prefix + p
	}
	name := javaType
	if c, ok := f.byName[javaType]; ok {
		name = c.Obf
	}
	return prefix + "L" + internal(name) + ";"
}

func internal(name string) string {
	return strings.ReplaceAll(name, ".", "/")
}
