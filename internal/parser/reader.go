package parser

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/floorplan-studio/backend/internal/models"
)

// Drawing is the raw tokenized form of a drawing file: header variables
// plus the ordered entity list.
type Drawing struct {
	Header   map[string]string
	Entities []models.RawEntity
}

// Reader tokenizes DXF-like ASCII entity streams. The format is a sequence
// of (group code, value) line pairs; entities live in the ENTITIES section.
type Reader struct{}

// NewReader creates a Reader.
func NewReader() *Reader {
	return &Reader{}
}

// groupPair is one tokenized (code, value) pair with its source line.
type groupPair struct {
	code  int
	value string
	line  int
}

// Read tokenizes the drawing text into a Drawing. It fails with a
// FormatError if the stream is structurally malformed (non-numeric group
// codes, unbalanced SECTION/ENDSEC). Unknown entity kinds are preserved
// with kind=unknown so the classifier can still attempt a fallback mapping.
func (r *Reader) Read(text string) (*Drawing, error) {
	pairs, err := tokenizePairs(text)
	if err != nil {
		return nil, err
	}

	drawing := &Drawing{
		Header:   make(map[string]string),
		Entities: make([]models.RawEntity, 0),
	}

	i := 0
	inSection := false
	sectionName := ""
	sectionLine := 0

	for i < len(pairs) {
		p := pairs[i]

		if p.code != 0 {
			// Stray non-structural pair outside any entity context; skip.
			i++
			continue
		}

		switch strings.ToUpper(p.value) {
		case "SECTION":
			if inSection {
				return nil, NewFormatError(p.line, "nested SECTION marker")
			}
			inSection = true
			sectionLine = p.line
			sectionName = ""
			i++
			// Section name follows as a group 2 pair.
			if i < len(pairs) && pairs[i].code == 2 {
				sectionName = strings.ToUpper(strings.TrimSpace(pairs[i].value))
				i++
			}
			switch sectionName {
			case "HEADER":
				i = r.readHeader(pairs, i, drawing)
			case "ENTITIES":
				var err error
				i, err = r.readEntities(pairs, i, drawing)
				if err != nil {
					return nil, err
				}
			}
		case "ENDSEC":
			if !inSection {
				return nil, NewFormatError(p.line, "ENDSEC without matching SECTION")
			}
			inSection = false
			i++
		case "EOF":
			if inSection {
				return nil, NewFormatError(sectionLine, "SECTION not closed before EOF")
			}
			return drawing, nil
		default:
			// Entity or table record outside a recognized context; skip.
			i++
		}
	}

	if inSection {
		return nil, NewFormatError(sectionLine, "SECTION not closed at end of input")
	}

	return drawing, nil
}

// tokenizePairs splits the raw text into (code, value) pairs.
func tokenizePairs(text string) ([]groupPair, error) {
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	pairs := make([]groupPair, 0, 256)
	lineNum := 0
	var codeLine string
	codeLineNum := 0
	haveCode := false

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if lineNum == 1 {
			line = strings.TrimPrefix(line, "\xEF\xBB\xBF")
		}

		if !haveCode {
			codeLine = strings.TrimSpace(line)
			codeLineNum = lineNum
			haveCode = true
			continue
		}

		code, err := strconv.Atoi(codeLine)
		if err != nil {
			return nil, NewFormatError(codeLineNum, "group code is not numeric: "+codeLine)
		}

		pairs = append(pairs, groupPair{
			code:  code,
			value: strings.TrimRight(line, "\r"),
			line:  codeLineNum,
		})
		haveCode = false
	}

	if err := scanner.Err(); err != nil {
		return nil, NewFormatError(lineNum, "read failed: "+err.Error())
	}

	if haveCode && strings.TrimSpace(codeLine) != "" {
		return nil, NewFormatError(codeLineNum, "dangling group code without value")
	}

	return pairs, nil
}

// readHeader collects $VARIABLE values until ENDSEC. Header variables like
// $INSUNITS carry explicit unit hints used by the normalizer.
func (r *Reader) readHeader(pairs []groupPair, i int, d *Drawing) int {
	currentVar := ""
	for i < len(pairs) {
		p := pairs[i]
		if p.code == 0 {
			return i // ENDSEC handled by caller
		}
		if p.code == 9 {
			currentVar = strings.ToUpper(strings.TrimSpace(p.value))
		} else if currentVar != "" {
			// First value pair wins for a variable.
			if _, ok := d.Header[currentVar]; !ok {
				d.Header[currentVar] = strings.TrimSpace(p.value)
			}
		}
		i++
	}
	return i
}

// readEntities builds RawEntity values until ENDSEC.
func (r *Reader) readEntities(pairs []groupPair, i int, d *Drawing) (int, error) {
	for i < len(pairs) {
		p := pairs[i]
		if p.code != 0 {
			i++
			continue
		}

		name := strings.ToUpper(strings.TrimSpace(p.value))
		if name == "ENDSEC" || name == "EOF" {
			return i, nil
		}
		if name == "SECTION" {
			return i, NewFormatError(p.line, "nested SECTION marker")
		}

		var entity models.RawEntity
		var err error
		switch name {
		case "LINE":
			entity, i = r.readLine(pairs, i+1, p.line)
		case "LWPOLYLINE":
			entity, i = r.readLWPolyline(pairs, i+1, p.line)
		case "POLYLINE":
			entity, i, err = r.readPolyline(pairs, i+1, p.line)
			if err != nil {
				return i, err
			}
		case "INSERT":
			entity, i = r.readInsert(pairs, i+1, p.line)
		case "TEXT", "MTEXT":
			entity, i = r.readText(pairs, i+1, p.line)
		default:
			entity, i = r.readUnknown(pairs, i+1, name, p.line)
		}
		d.Entities = append(d.Entities, entity)
	}
	return i, nil
}

// consumeUntilNextEntity collects the attribute pairs of one entity.
func consumeUntilNextEntity(pairs []groupPair, i int) ([]groupPair, int) {
	start := i
	for i < len(pairs) && pairs[i].code != 0 {
		i++
	}
	return pairs[start:i], i
}

func attrFloat(attrs []groupPair, code int) (float64, bool) {
	for _, a := range attrs {
		if a.code == code {
			v, err := strconv.ParseFloat(strings.TrimSpace(a.value), 64)
			if err == nil {
				return v, true
			}
		}
	}
	return 0, false
}

func attrString(attrs []groupPair, code int) (string, bool) {
	for _, a := range attrs {
		if a.code == code {
			return strings.TrimSpace(a.value), true
		}
	}
	return "", false
}

func attrLayer(attrs []groupPair) string {
	layer, _ := attrString(attrs, 8)
	return layer
}

func (r *Reader) readLine(pairs []groupPair, i, srcLine int) (models.RawEntity, int) {
	attrs, next := consumeUntilNextEntity(pairs, i)

	x1, _ := attrFloat(attrs, 10)
	y1, _ := attrFloat(attrs, 20)
	x2, _ := attrFloat(attrs, 11)
	y2, _ := attrFloat(attrs, 21)

	return models.RawEntity{
		Kind:   models.EntityKindLine,
		Layer:  attrLayer(attrs),
		Points: []models.Point2D{{X: x1, Y: y1}, {X: x2, Y: y2}},
		Line:   srcLine,
	}, next
}

func (r *Reader) readLWPolyline(pairs []groupPair, i, srcLine int) (models.RawEntity, int) {
	attrs, next := consumeUntilNextEntity(pairs, i)

	points := make([]models.Point2D, 0, 8)
	var pendingX float64
	havePendingX := false
	closed := false
	attributes := make(map[string]string)

	for _, a := range attrs {
		switch a.code {
		case 10:
			if v, err := strconv.ParseFloat(strings.TrimSpace(a.value), 64); err == nil {
				pendingX = v
				havePendingX = true
			}
		case 20:
			if v, err := strconv.ParseFloat(strings.TrimSpace(a.value), 64); err == nil && havePendingX {
				points = append(points, models.Point2D{X: pendingX, Y: v})
				havePendingX = false
			}
		case 70:
			if flags, err := strconv.Atoi(strings.TrimSpace(a.value)); err == nil {
				closed = flags&1 != 0
			}
		case 43:
			attributes["width"] = strings.TrimSpace(a.value)
		}
	}

	return models.RawEntity{
		Kind:       models.EntityKindPolyline,
		Layer:      attrLayer(attrs),
		Points:     points,
		Closed:     closed,
		Attributes: attributes,
		Line:       srcLine,
	}, next
}

// readPolyline handles the legacy POLYLINE/VERTEX/SEQEND form.
func (r *Reader) readPolyline(pairs []groupPair, i, srcLine int) (models.RawEntity, int, error) {
	attrs, next := consumeUntilNextEntity(pairs, i)

	layer := attrLayer(attrs)
	closed := false
	if flags, ok := attrFloat(attrs, 70); ok {
		closed = int(flags)&1 != 0
	}

	points := make([]models.Point2D, 0, 8)
	i = next
	for i < len(pairs) {
		p := pairs[i]
		if p.code != 0 {
			i++
			continue
		}
		name := strings.ToUpper(strings.TrimSpace(p.value))
		if name == "VERTEX" {
			vAttrs, vNext := consumeUntilNextEntity(pairs, i+1)
			x, _ := attrFloat(vAttrs, 10)
			y, _ := attrFloat(vAttrs, 20)
			points = append(points, models.Point2D{X: x, Y: y})
			i = vNext
			continue
		}
		if name == "SEQEND" {
			_, i = consumeUntilNextEntity(pairs, i+1)
			return models.RawEntity{
				Kind:   models.EntityKindPolyline,
				Layer:  layer,
				Points: points,
				Closed: closed,
				Line:   srcLine,
			}, i, nil
		}
		// Another entity started without SEQEND: tolerate and hand back.
		return models.RawEntity{
			Kind:   models.EntityKindPolyline,
			Layer:  layer,
			Points: points,
			Closed: closed,
			Line:   srcLine,
		}, i, nil
	}

	return models.RawEntity{
		Kind:   models.EntityKindPolyline,
		Layer:  layer,
		Points: points,
		Closed: closed,
		Line:   srcLine,
	}, i, nil
}

func (r *Reader) readInsert(pairs []groupPair, i, srcLine int) (models.RawEntity, int) {
	attrs, next := consumeUntilNextEntity(pairs, i)

	x, _ := attrFloat(attrs, 10)
	y, _ := attrFloat(attrs, 20)

	attributes := make(map[string]string)
	if name, ok := attrString(attrs, 2); ok {
		attributes["name"] = name
	}
	if rot, ok := attrFloat(attrs, 50); ok {
		attributes["rotation"] = strconv.FormatFloat(rot, 'g', -1, 64)
	}

	return models.RawEntity{
		Kind:       models.EntityKindInsert,
		Layer:      attrLayer(attrs),
		Points:     []models.Point2D{{X: x, Y: y}},
		Attributes: attributes,
		Line:       srcLine,
	}, next
}

func (r *Reader) readText(pairs []groupPair, i, srcLine int) (models.RawEntity, int) {
	attrs, next := consumeUntilNextEntity(pairs, i)

	x, _ := attrFloat(attrs, 10)
	y, _ := attrFloat(attrs, 20)

	attributes := make(map[string]string)
	if text, ok := attrString(attrs, 1); ok {
		attributes["text"] = text
	}

	return models.RawEntity{
		Kind:       models.EntityKindText,
		Layer:      attrLayer(attrs),
		Points:     []models.Point2D{{X: x, Y: y}},
		Attributes: attributes,
		Line:       srcLine,
	}, next
}

func (r *Reader) readUnknown(pairs []groupPair, i int, name string, srcLine int) (models.RawEntity, int) {
	attrs, next := consumeUntilNextEntity(pairs, i)

	points := make([]models.Point2D, 0, 2)
	var pendingX float64
	havePendingX := false
	for _, a := range attrs {
		switch a.code {
		case 10:
			if v, err := strconv.ParseFloat(strings.TrimSpace(a.value), 64); err == nil {
				pendingX = v
				havePendingX = true
			}
		case 20:
			if v, err := strconv.ParseFloat(strings.TrimSpace(a.value), 64); err == nil && havePendingX {
				points = append(points, models.Point2D{X: pendingX, Y: v})
				havePendingX = false
			}
		}
	}

	return models.RawEntity{
		Kind:       models.EntityKindUnknown,
		Layer:      attrLayer(attrs),
		Points:     points,
		Attributes: map[string]string{"type": name},
		Line:       srcLine,
	}, next
}
