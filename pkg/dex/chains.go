package dex

// Chain describes an EVM network the execution network can settle on.
type Chain struct {
	ID       string
	Name     string
	Symbol   string
	Decimals int
}

var chains = map[string]Chain{
	"1":     {ID: "1", Name: "Ethereum", Symbol: "ETH", Decimals: 18},
	"56":    {ID: "56", Name: "Binance Smart Chain", Symbol: "BNB", Decimals: 18},
	"137":   {ID: "137", Name: "Polygon", Symbol: "POL", Decimals: 18},
	"324":   {ID: "324", Name: "ZkSync", Symbol: "ETH", Decimals: 18},
	"8453":  {ID: "8453", Name: "Base", Symbol: "ETH", Decimals: 18},
	"43114": {ID: "43114", Name: "Avalanche", Symbol: "AVAX", Decimals: 18},
}

func ChainByID(id string) (Chain, bool) {
	chain, ok := chains[id]
	return chain, ok
}

func ChainExists(id string) bool {
	_, ok := chains[id]
	return ok
}
