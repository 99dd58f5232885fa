/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package mappings

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// File is a parsed ProGuard map. Names on the left of "->" are the readable
// names and those on the right the obfuscated ones.
type File struct {
	classes []*Class
	byName  map[string]*Class
}

// Class maps one type and its members.
type Class struct {
	Named   string
	Obf     string
	Fields  []Field
	Methods []Method
}

// Field maps a field. Type is a Java source type name.
type Field struct {
	Type  string
	Named string
	Obf   string
}

// Method maps a method. Return and Params are Java source type names.
type Method struct {
	Return string
	Named  string
	Params []string
	Obf    string
}

func (f Field) key() string {
	return f.Type + " " + f.Named + " -> " + f.Obf
}

func (m Method) key() string {
	return m.Return + " " + m.Named + "(" + strings.Join(m.Params, ",") + ") -> " + m.Obf
}

// Classes returns the classes in file order.
func (f *File) Classes() []*Class {
	return f.classes
}

// Class returns the class with the given readable name.
func (f *File) Class(named string) (*Class, bool) {
	c, ok := f.byName[named]
	return c, ok
}

// ParseFile parses the ProGuard map at path.
func ParseFile(path string) (*File, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	f, err := Parse(in)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return f, nil
}

// Parse reads a ProGuard map.
func Parse(r io.Reader) (*File, error) {
	f := &File{byName: make(map[string]*Class)}
	var current *Class

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for n := 1; sc.Scan(); n++ {
		raw := strings.TrimRight(sc.Text(), " \t\r")
		line := strings.TrimLeft(raw, " \t")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		left, obf, ok := strings.Cut(line, " -> ")
		if !ok {
			return nil, fmt.Errorf("line %d: missing \"->\"", n)
		}

		if raw == line {
			if !strings.HasSuffix(obf, ":") {
				return nil, fmt.Errorf("line %d: class mapping must end with ':'", n)
			}
			current = &Class{Named: left, Obf: strings.TrimSuffix(obf, ":")}
			if _, dup := f.byName[current.Named]; dup {
				return nil, fmt.Errorf("line %d: duplicate class %s", n, current.Named)
			}
			f.classes = append(f.classes, current)
			f.byName[current.Named] = current
			continue
		}

		if current == nil {
			return nil, fmt.Errorf("line %d: member outside of a class", n)
		}
		if err := current.addMember(left, obf); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return f, nil
}

func (c *Class) addMember(left, obf string) error {
	left = stripLineNumbers(left)
	typ, rest, ok := strings.Cut(left, " ")
	if !ok {
		return fmt.Errorf("malformed member %q", left)
	}

	open := strings.IndexByte(rest, '(')
	if open < 0 {
		c.Fields = append(c.Fields, Field{Type: typ, Named: rest, Obf: obf})
		return nil
	}

	end := strings.LastIndexByte(rest, ')')
	if end < open {
		return fmt.Errorf("malformed method %q", left)
	}
	var params []string
	if args := rest[open+1 : end]; args != "" {
		params = strings.Split(args, ",")
	}
	c.Methods = append(c.Methods, Method{Return: typ, Named: rest[:open], Params: params, Obf: obf})
	return nil
}

// stripLineNumbers removes the "12:34:" prefix and ":56:78" suffix that
// ProGuard attaches to methods.
func stripLineNumbers(s string) string {
	for {
		i := strings.IndexByte(s, ':')
		if i <= 0 || !isDigits(s[:i]) {
			break
		}
		s = s[i+1:]
	}
	if end := strings.LastIndexByte(s, ')'); end >= 0 && end < len(s)-1 && s[end+1] == ':' {
		s = s[:end+1]
	}
	return s
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
