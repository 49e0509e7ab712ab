package catalog

import "billetera/internal/core"

// Decoration is the presentation data attached to a category.
type Decoration struct {
	Icon        string `json:"icon"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

// DefaultDecoration is used for any (type, name) missing from the table,
// which happens for renamed or user-created categories.
var DefaultDecoration = Decoration{
	Icon:        "more-horiz",
	Color:       "#607D8B",
	Description: "Sin descripción",
}

var decorations = map[core.TxType]map[string]Decoration{
	core.Income: {
		"Salario":     {Icon: "work", Color: "#4CAF50", Description: "Sueldo, bonos, horas extras"},
		"Inversiones": {Icon: "business", Color: "#2196F3", Description: "Dividendos, intereses, rentas"},
		"Regalos":     {Icon: "card-giftcard", Color: "#9C27B0", Description: "Obsequios, premios, herencias"},
		"Freelance":   {Icon: "attach-money", Color: "#FF9800", Description: "Trabajos independientes"},
		"Ahorros":     {Icon: "savings", Color: "#00BCD4", Description: "Retiros de ahorros, plazos fijos"},
		"Otros":       {Icon: "more-horiz", Color: "#607D8B", Description: "Otros ingresos"},
	},
	core.Expense: {
		"Comida":          {Icon: "restaurant", Color: "#FF6B6B", Description: "Restaurantes, mercado, delivery"},
		"Transporte":      {Icon: "directions-car", Color: "#4ECDC4", Description: "Gasolina, pasajes, mantenimiento"},
		"Entretenimiento": {Icon: "movie", Color: "#45B7D1", Description: "Cine, eventos, actividades"},
		"Servicios":       {Icon: "build", Color: "#96CEB4", Description: "Luz, agua, internet"},
		"Compras":         {Icon: "shopping-cart", Color: "#D4A5A5", Description: "Ropa, tecnología, accesorios"},
		"Otros":           {Icon: "more-horiz", Color: "#6B717E", Description: "Otros gastos"},
	},
}

// DecorateName looks up the decoration for a category by type and name.
// The second result is false when the fallback was used.
func DecorateName(t core.TxType, name string) (Decoration, bool) {
	if d, ok := decorations[t][name]; ok {
		return d, true
	}
	return DefaultDecoration, false
}

// Decorate returns icon, color and description for c.
func Decorate(c core.Category) Decoration {
	d, _ := DecorateName(c.Type, c.Name)
	return d
}
