// reader_test.go - Tests for the DXF entity stream tokenizer
package parser

import (
	"strings"
	"testing"

	"github.com/floorplan-studio/backend/internal/models"
)

// dxf joins (code, value) pairs into a raw drawing text.
func dxf(pairs ...string) string {
	return strings.Join(pairs, "\n") + "\n"
}

// wrapEntities wraps entity pairs into a minimal valid drawing.
func wrapEntities(pairs ...string) string {
	all := append([]string{"0", "SECTION", "2", "ENTITIES"}, pairs...)
	all = append(all, "0", "ENDSEC", "0", "EOF")
	return dxf(all...)
}

func TestReader_Read(t *testing.T) {
	reader := NewReader()

	t.Run("line entity", func(t *testing.T) {
		text := wrapEntities(
			"0", "LINE",
			"8", "A-WALL",
			"10", "1.5", "20", "2.5",
			"11", "6.5", "21", "2.5",
		)

		drawing, err := reader.Read(text)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if len(drawing.Entities) != 1 {
			t.Fatalf("Expected 1 entity, got %d", len(drawing.Entities))
		}

		e := drawing.Entities[0]
		if e.Kind != models.EntityKindLine {
			t.Errorf("Expected line kind, got %v", e.Kind)
		}
		if e.Layer != "A-WALL" {
			t.Errorf("Expected layer A-WALL, got %q", e.Layer)
		}
		if len(e.Points) != 2 || e.Points[0].X != 1.5 || e.Points[1].Y != 2.5 {
			t.Errorf("Unexpected points: %v", e.Points)
		}
	})

	t.Run("lwpolyline with closed flag and width", func(t *testing.T) {
		text := wrapEntities(
			"0", "LWPOLYLINE",
			"8", "ROOM",
			"90", "4",
			"70", "1",
			"43", "0.25",
			"10", "0", "20", "0",
			"10", "5", "20", "0",
			"10", "5", "20", "3",
			"10", "0", "20", "3",
		)

		drawing, err := reader.Read(text)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if len(drawing.Entities) != 1 {
			t.Fatalf("Expected 1 entity, got %d", len(drawing.Entities))
		}

		e := drawing.Entities[0]
		if e.Kind != models.EntityKindPolyline {
			t.Errorf("Expected polyline kind, got %v", e.Kind)
		}
		if !e.Closed {
			t.Error("Expected closed polyline")
		}
		if len(e.Points) != 4 {
			t.Errorf("Expected 4 points, got %d", len(e.Points))
		}
		if e.Attributes["width"] != "0.25" {
			t.Errorf("Expected width attribute 0.25, got %q", e.Attributes["width"])
		}
	})

	t.Run("legacy polyline with vertex and seqend", func(t *testing.T) {
		text := wrapEntities(
			"0", "POLYLINE",
			"8", "WALL",
			"70", "1",
			"0", "VERTEX", "10", "0", "20", "0",
			"0", "VERTEX", "10", "4", "20", "0",
			"0", "VERTEX", "10", "4", "20", "4",
			"0", "SEQEND",
		)

		drawing, err := reader.Read(text)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if len(drawing.Entities) != 1 {
			t.Fatalf("Expected 1 entity, got %d", len(drawing.Entities))
		}

		e := drawing.Entities[0]
		if len(e.Points) != 3 {
			t.Errorf("Expected 3 vertices, got %d", len(e.Points))
		}
		if !e.Closed {
			t.Error("Expected closed flag from group 70")
		}
	})

	t.Run("insert with block name and rotation", func(t *testing.T) {
		text := wrapEntities(
			"0", "INSERT",
			"8", "FURNITURE",
			"2", "CHAIR_01",
			"10", "2", "20", "3",
			"50", "90",
		)

		drawing, err := reader.Read(text)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}

		e := drawing.Entities[0]
		if e.Kind != models.EntityKindInsert {
			t.Errorf("Expected insert kind, got %v", e.Kind)
		}
		if e.Attributes["name"] != "CHAIR_01" {
			t.Errorf("Expected block name CHAIR_01, got %q", e.Attributes["name"])
		}
		if e.Attributes["rotation"] != "90" {
			t.Errorf("Expected rotation 90, got %q", e.Attributes["rotation"])
		}
	})

	t.Run("text entity", func(t *testing.T) {
		text := wrapEntities(
			"0", "TEXT",
			"8", "ANNO",
			"1", "Meeting Room",
			"10", "2.5", "20", "1.5",
		)

		drawing, err := reader.Read(text)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}

		e := drawing.Entities[0]
		if e.Kind != models.EntityKindText {
			t.Errorf("Expected text kind, got %v", e.Kind)
		}
		if e.Attributes["text"] != "Meeting Room" {
			t.Errorf("Expected text attribute, got %q", e.Attributes["text"])
		}
	})

	t.Run("unknown entity kind is preserved", func(t *testing.T) {
		text := wrapEntities(
			"0", "ARC",
			"8", "WALL",
			"10", "1", "20", "1",
			"40", "2.5",
		)

		drawing, err := reader.Read(text)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if len(drawing.Entities) != 1 {
			t.Fatalf("Expected unknown entity to be preserved, got %d entities", len(drawing.Entities))
		}

		e := drawing.Entities[0]
		if e.Kind != models.EntityKindUnknown {
			t.Errorf("Expected unknown kind, got %v", e.Kind)
		}
		if e.Attributes["type"] != "ARC" {
			t.Errorf("Expected original type ARC, got %q", e.Attributes["type"])
		}
	})

	t.Run("header variables", func(t *testing.T) {
		text := dxf(
			"0", "SECTION",
			"2", "HEADER",
			"9", "$INSUNITS",
			"70", "4",
			"0", "ENDSEC",
			"0", "SECTION",
			"2", "ENTITIES",
			"0", "ENDSEC",
			"0", "EOF",
		)

		drawing, err := reader.Read(text)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if drawing.Header["$INSUNITS"] != "4" {
			t.Errorf("Expected $INSUNITS=4, got %q", drawing.Header["$INSUNITS"])
		}
	})

	t.Run("preserves entity order", func(t *testing.T) {
		text := wrapEntities(
			"0", "LINE", "8", "W1", "10", "0", "20", "0", "11", "1", "21", "0",
			"0", "INSERT", "8", "F", "2", "DESK_01", "10", "0", "20", "0",
			"0", "LINE", "8", "W2", "10", "1", "20", "0", "11", "2", "21", "0",
		)

		drawing, err := reader.Read(text)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if len(drawing.Entities) != 3 {
			t.Fatalf("Expected 3 entities, got %d", len(drawing.Entities))
		}
		if drawing.Entities[0].Layer != "W1" || drawing.Entities[2].Layer != "W2" {
			t.Error("Entity order not preserved")
		}
	})

	t.Run("handles UTF-8 BOM", func(t *testing.T) {
		text := "\xEF\xBB\xBF" + wrapEntities(
			"0", "LINE", "8", "WALL", "10", "0", "20", "0", "11", "1", "21", "1",
		)

		drawing, err := reader.Read(text)
		if err != nil {
			t.Fatalf("Read failed with BOM: %v", err)
		}
		if len(drawing.Entities) != 1 {
			t.Errorf("Expected 1 entity, got %d", len(drawing.Entities))
		}
	})

	t.Run("empty input", func(t *testing.T) {
		drawing, err := reader.Read("")
		if err != nil {
			t.Fatalf("Read failed on empty input: %v", err)
		}
		if len(drawing.Entities) != 0 {
			t.Errorf("Expected no entities, got %d", len(drawing.Entities))
		}
	})
}

func TestReader_FormatErrors(t *testing.T) {
	reader := NewReader()

	t.Run("non-numeric group code", func(t *testing.T) {
		text := dxf("0", "SECTION", "2", "ENTITIES", "abc", "LINE", "0", "ENDSEC", "0", "EOF")

		_, err := reader.Read(text)
		if err == nil {
			t.Fatal("Expected FormatError for non-numeric group code")
		}
		if _, ok := err.(*FormatError); !ok {
			t.Errorf("Expected *FormatError, got %T", err)
		}
	})

	t.Run("unclosed section", func(t *testing.T) {
		text := dxf("0", "SECTION", "2", "ENTITIES", "0", "EOF")

		_, err := reader.Read(text)
		if err == nil {
			t.Fatal("Expected FormatError for unclosed SECTION")
		}
	})

	t.Run("endsec without section", func(t *testing.T) {
		text := dxf("0", "ENDSEC", "0", "EOF")

		_, err := reader.Read(text)
		if err == nil {
			t.Fatal("Expected FormatError for ENDSEC without SECTION")
		}
	})

	t.Run("nested section", func(t *testing.T) {
		text := dxf("0", "SECTION", "2", "ENTITIES", "0", "SECTION", "0", "ENDSEC", "0", "EOF")

		_, err := reader.Read(text)
		if err == nil {
			t.Fatal("Expected FormatError for nested SECTION")
		}
	})

	t.Run("dangling group code", func(t *testing.T) {
		text := "0\nSECTION\n2\nENTITIES\n0\nENDSEC\n0\nEOF\n10"

		_, err := reader.Read(text)
		if err == nil {
			t.Fatal("Expected FormatError for dangling group code")
		}
	})

	t.Run("error carries line number", func(t *testing.T) {
		text := dxf("0", "SECTION", "2", "ENTITIES", "xyz", "LINE")

		_, err := reader.Read(text)
		fe, ok := err.(*FormatError)
		if !ok {
			t.Fatalf("Expected *FormatError, got %T", err)
		}
		if fe.Line != 5 {
			t.Errorf("Expected error at line 5, got %d", fe.Line)
		}
	})
}
