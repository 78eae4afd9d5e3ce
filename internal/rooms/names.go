package rooms

// AlertsRoom receives system alert broadcasts.
const AlertsRoom = "alerts:system"

// MarketRoom names the multicast group for one symbol's ticks.
func MarketRoom(symbol string) string {
	return "market:" + symbol
}
