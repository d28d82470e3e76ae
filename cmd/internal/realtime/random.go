package realtime

import (
	"math/rand/v2"

	v1 "plaza/shared/contracts/realtime/v1"
)

// SpawnFunc picks a start cell in [0,width) x [0,height).
type SpawnFunc func(width, height int) v1.Point

// RandomSpawn draws uniformly. Spawn points are not secrets.
func RandomSpawn(width, height int) v1.Point {
	return v1.Point{X: rand.IntN(width), Y: rand.IntN(height)}
}
