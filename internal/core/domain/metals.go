package domain

type Symbol string

const (
	SymbolGold      Symbol = "XAU"
	SymbolSilver    Symbol = "XAG"
	SymbolPlatinum  Symbol = "XPT"
	SymbolPalladium Symbol = "XPD"
	SymbolCopper    Symbol = "XCU"
	SymbolZinc      Symbol = "ZNC"
)

// DefaultSymbols is the tracked set when configuration does not name one.
var DefaultSymbols = []Symbol{
	SymbolGold,
	SymbolSilver,
	SymbolPlatinum,
	SymbolPalladium,
	SymbolCopper,
	SymbolZinc,
}

// SymbolNames maps a Symbol to its display name.
var SymbolNames = map[Symbol]string{
	SymbolGold:      "Gold",
	SymbolSilver:    "Silver",
	SymbolPlatinum:  "Platinum",
	SymbolPalladium: "Palladium",
	SymbolCopper:    "Copper",
	SymbolZinc:      "Zinc",
}

// Name returns the display name, falling back to the raw symbol.
func (s Symbol) Name() string {
	if name, ok := SymbolNames[s]; ok {
		return name
	}
	return string(s)
}
