package protocol

import "math"

// Scale maps x from [fromLow, fromHigh] onto [toLow, toHigh] and truncates.
// A degenerate source range returns toLow instead of dividing by zero.
func Scale(x, fromLow, fromHigh, toLow, toHigh float64) int {
	if fromHigh == 0 || fromHigh == fromLow {
		return int(math.Trunc(toLow))
	}
	return int(math.Trunc((x-fromLow)*(toHigh-toLow)/(fromHigh-fromLow) + toLow))
}

// MapPoint converts a point on a local control surface into host screen
// coordinates.
func MapPoint(x, y float64, surface, host ScreenSize) (int, int) {
	return Scale(x, 0, float64(surface.Width), 0, float64(host.Width)),
		Scale(y, 0, float64(surface.Height), 0, float64(host.Height))
}

// HostScreenSize converts logical display metrics into the physical pixel
// size advertised to controllers. macOS already reports physical input
// coordinates, so its scale factor is ignored.
func HostScreenSize(width, height int, scaleFactor float64, goos string) ScreenSize {
	if goos == "darwin" || scaleFactor <= 0 {
		scaleFactor = 1
	}
	return ScreenSize{
		Width:  int(math.Trunc(float64(width) * scaleFactor)),
		Height: int(math.Trunc(float64(height) * scaleFactor)),
	}
}
