package export

import (
	"fmt"

	"dario.cat/mergo"
	"github.com/xuri/excelize/v2"
)

func cell(col rune, row int) string {
	return fmt.Sprintf("%c%d", col, row)
}

func defaultStyle() *excelize.Style {
	return &excelize.Style{
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#FFFFFF"},
			Pattern: 1,
		},
	}
}

func moneyFormat() *excelize.Style {
	fmt := "#,##0.00"
	return &excelize.Style{
		CustomNumFmt: &fmt,
	}
}

func percentFormat() *excelize.Style {
	fmt := "0.0%"
	return &excelize.Style{
		CustomNumFmt: &fmt,
	}
}

func fontBold() *excelize.Style {
	return &excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
	}
}

func textAlignment(a string) *excelize.Style {
	return &excelize.Style{
		Alignment: &excelize.Alignment{
			Horizontal: a,
		},
	}
}

func thinBorder(where ...string) *excelize.Style {
	s := &excelize.Style{}
	for _, w := range where {
		s.Border = append(s.Border, excelize.Border{
			Type:  w,
			Color: "#000000",
			Style: 1,
		})
	}
	return s
}

func thickBorder(where ...string) *excelize.Style {
	s := &excelize.Style{}
	for _, w := range where {
		s.Border = append(s.Border, excelize.Border{
			Type:  w,
			Color: "#000000",
			Style: 2,
		})
	}
	return s
}

// swatch fills the cell with a category color.
func swatch(color string) *excelize.Style {
	return &excelize.Style{
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{color},
			Pattern: 1,
		},
	}
}

func mergeStyles(ext ...*excelize.Style) *excelize.Style {
	if len(ext) == 0 {
		return nil
	}
	for _, e := range ext[1:] {
		_ = mergo.Merge(ext[0], e, mergo.WithOverride)
	}
	return ext[0]
}

func setStyle(xlsx *excelize.File, sheet, from, to string, styles ...*excelize.Style) {
	style, err := xlsx.NewStyle(mergeStyles(styles...))
	if err != nil {
		return
	}
	_ = xlsx.SetCellStyle(sheet, from, to, style)
}
