package utils

import (
	"fmt"
	"strings"
)

// AsciiFrameField is one field of an AsciiFrame diagram — an address-window,
// bank range, or bitfield occupying a contiguous run of units.
type AsciiFrameField struct {
	// Name of the field
	Name string

	// Units within the frame the field begins from
	Begin int

	// Field width
	Width int
}

// TopUnit is the last unit within the frame used by this field.
func (f *AsciiFrameField) TopUnit() int {
	return f.PastTopUnit() - 1
}

// PastTopUnit is the first unit within the frame used by the next field.
func (f *AsciiFrameField) PastTopUnit() int {
	return f.Begin + f.Width
}

type AsciiFrameUnitLayout uint

const (
	// Units increase left to right
	AsciiFrameUnitLayout_LeftToRight AsciiFrameUnitLayout = iota
	// Units increase right to left
	AsciiFrameUnitLayout_RightToLeft
)

type asciiFrame struct {
	fields     []AsciiFrameField
	frameWidth int
	unit       string
	leftpad    int
	layout     AsciiFrameUnitLayout
}

func (f *asciiFrame) TopUnit() int {
	return f.frameWidth - 1
}

func writeRow(text string, textDecorationExtraLength int, filler string, length int, builder *strings.Builder) {
	if len(filler) > 1 {
		panic(fmt.Errorf("filler %q must be one character long", filler))
	}
	if len(text) > length {
		panic(fmt.Errorf("text %q is %v chars long but target length is only %v chars", text, len(text), length))
	}

	leftpadLength := (length - len(text) - textDecorationExtraLength) / 2
	rightpadLength := (length - len(text) - textDecorationExtraLength) / 2
	rightpadLength += length - leftpadLength - len(text) - textDecorationExtraLength - rightpadLength

	builder.WriteString(strings.Repeat(filler, leftpadLength))
	builder.WriteString(text)
	builder.WriteString(strings.Repeat(filler, rightpadLength))
}

func (f *asciiFrame) Draw() string {
	const (
		bodySplitter  string = "|"
		borderSplit   string = "+"
		borderBody    string = "-"
		arrowTipLeft  string = "<-"
		arrowBody     string = "-"
		arrowTipRight string = "->"
		indexBody     string = " "
		arrowSplitter string = " "
	)

	type entry struct {
		index     string
		name      string
		width     string
		minLength int
	}

	leftpad := strings.Repeat(" ", f.leftpad)
	entries := make([]entry, len(f.fields))

	for i := range entries {
		field := &f.fields[i]
		if f.layout == AsciiFrameUnitLayout_RightToLeft {
			field = &f.fields[len(f.fields)-i-1]
		}

		e := &entries[i]
		if f.layout == AsciiFrameUnitLayout_RightToLeft {
			e.index = fmt.Sprintf("%v", field.TopUnit())
		} else {
			e.index = fmt.Sprintf("%v", field.Begin)
		}
		e.name = fmt.Sprintf(" %v ", field.Name)
		e.width = fmt.Sprintf(" %v %v ", field.Width, f.unit)
		e.minLength = Max([]int{len(e.index), len(e.name), len(arrowTipLeft) + len(e.width) + len(arrowTipRight)})
	}

	var indicesRow, headerRow, bodyRow, footerRow, widthsRow strings.Builder
	for _, b := range []*strings.Builder{&indicesRow, &headerRow, &bodyRow, &footerRow, &widthsRow} {
		b.WriteString(leftpad)
	}

	for _, e := range entries {
		indicesRow.WriteString(e.index)
		indicesRow.WriteString(strings.Repeat(indexBody, (e.minLength-len(e.index)+1)/len(indexBody)))
		headerRow.WriteString(borderSplit)
		headerRow.WriteString(strings.Repeat(borderBody, e.minLength/len(borderBody)))
		bodyRow.WriteString(bodySplitter)
		writeRow(e.name, 0, " ", e.minLength, &bodyRow)
		footerRow.WriteString(borderSplit)
		footerRow.WriteString(strings.Repeat(borderBody, e.minLength/len(borderBody)))
		widthsRow.WriteString(arrowSplitter)
		widthsRow.WriteString(arrowTipLeft)
		writeRow(e.width, len(arrowTipLeft)+len(arrowTipRight), arrowBody, e.minLength, &widthsRow)
		widthsRow.WriteString(arrowTipRight)
	}

	if f.layout == AsciiFrameUnitLayout_LeftToRight {
		indicesRow.WriteString(fmt.Sprint(f.TopUnit()))
	} else {
		indicesRow.WriteString("0")
	}

	headerRow.WriteString(borderSplit)
	bodyRow.WriteString(bodySplitter)
	footerRow.WriteString(borderSplit)
	widthsRow.WriteString(" ")

	var result strings.Builder
	for _, s := range []string{indicesRow.String(), headerRow.String(), bodyRow.String(), footerRow.String(), widthsRow.String()} {
		result.WriteString(s)
		result.WriteString("\n")
	}

	return result.String()
}

func fillAsciiFrameGaps(fields []AsciiFrameField, frameWidth int) []AsciiFrameField {
	result := make([]AsciiFrameField, 0, len(fields))
	currentUnit := 0

	for _, field := range fields {
		if field.Begin > currentUnit {
			result = append(result, AsciiFrameField{
				Name:  "(unused)",
				Begin: currentUnit,
				Width: field.Begin - currentUnit,
			})
		} else if field.Begin < currentUnit {
			panic("fields must be sorted by position and non-overlapping")
		}

		result = append(result, field)
		currentUnit = field.PastTopUnit()
	}

	if currentUnit < frameWidth {
		result = append(result, AsciiFrameField{
			Name:  "(unused)",
			Begin: currentUnit,
			Width: frameWidth - currentUnit,
		})
	}

	return result
}

// AsciiFrame renders an ascii diagram of a linear frame composed of
// contiguous fields of different unit lengths, such as a bank/section
// layout or an instruction encoding.
func AsciiFrame(fields []AsciiFrameField, frameWidth int, unit string, layout AsciiFrameUnitLayout, leftpad int) string {
	allFields := fillAsciiFrameGaps(fields, frameWidth)

	frame := asciiFrame{
		fields:     allFields,
		frameWidth: allFields[len(allFields)-1].PastTopUnit(),
		unit:       unit,
		leftpad:    leftpad,
		layout:     layout,
	}

	return frame.Draw()
}
