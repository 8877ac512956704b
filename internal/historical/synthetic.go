package historical

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"time"

	"github.com/clearskies/clearskies/internal/history"
	"github.com/clearskies/clearskies/internal/source"
)

// Synthetic generates a daily series ending today. Each value depends only
// on the rounded location and the day, so repeated calls agree.
func Synthetic(lat, lon float64, days int, now time.Time) []Reading {
	today := history.Day(now)
	readings := make([]Reading, 0, days)

	for i := days - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		rng := rand.New(rand.NewPCG(seed(lat, lon, day), 0x5eed))

		v := 50 + rng.NormFloat64()*15
		index := int(math.Max(20, math.Min(150, v)))

		r := newReading(day, index, source.Synthetic)
		r.Pollutants = map[string]float64{
			"pm25": round1(float64(index) / 4.5),
			"pm10": round1(float64(index) / 3.2),
		}
		readings = append(readings, r)
	}
	return readings
}

func seed(lat, lon float64, day time.Time) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, v := range []float64{history.RoundCoord(lat), history.RoundCoord(lon)} {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		_, _ = h.Write(buf[:])
	}
	binary.LittleEndian.PutUint64(buf[:], uint64(day.Unix()))
	_, _ = h.Write(buf[:])
	return h.Sum64()
}
