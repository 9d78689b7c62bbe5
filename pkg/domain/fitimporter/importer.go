// Package fitimporter converts raw FIT activity files into domain events.
package fitimporter

import (
	"bytes"
	"fmt"
	"time"

	"github.com/muktihari/fit/decoder"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"

	"github.com/quantifiedself/ingest-server/pkg/types"
)

// FIT message order: FileId -> DeviceInfo -> Records -> Lap -> Session -> Activity
// Records come BEFORE the Session summary, so everything is collected first
// and assembled at the end.

// sample is one record's worth of decoded values. Invalid sentinel values from
// the FIT encoding are represented as NaN-free absence via the ok flags.
type sample struct {
	heartRate float64
	hasHR     bool
	speed     float64
	hasSpeed  bool
	altitude  float64
	hasAlt    bool
	distance  float64
	hasDist   bool
	lat       float64
	lon       float64
	hasPos    bool
}

// Import decodes a FIT activity file into a DomainEvent. The event's ID is
// left empty; callers assign the composite identifier before persisting.
func Import(data []byte) (*types.DomainEvent, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty FIT data")
	}

	fitDec := decoder.New(bytes.NewReader(data))

	var samples []sample
	var startTime time.Time
	var name string
	var activityType string
	var totalDuration float64
	var totalDistance float64

	for fitDec.Next() {
		fitData, err := fitDec.Decode()
		if err != nil {
			return nil, fmt.Errorf("failed to decode FIT file: %w", err)
		}

		for _, msg := range fitData.Messages {
			switch msg.Num {
			case typedef.MesgNumFileId:
				fileId := mesgdef.NewFileId(&msg)
				if startTime.IsZero() && !fileId.TimeCreated.IsZero() {
					startTime = fileId.TimeCreated.UTC()
				}

			case typedef.MesgNumRecord:
				recordMsg := mesgdef.NewRecord(&msg)
				if recordMsg.Timestamp.IsZero() {
					continue
				}
				if startTime.IsZero() {
					startTime = recordMsg.Timestamp.UTC()
				}
				samples = append(samples, parseRecord(recordMsg))

			case typedef.MesgNumSession:
				sessionMsg := mesgdef.NewSession(&msg)
				if startTime.IsZero() && !sessionMsg.StartTime.IsZero() {
					startTime = sessionMsg.StartTime.UTC()
				}
				if sessionMsg.TotalElapsedTime != 0xFFFFFFFF {
					totalDuration += float64(sessionMsg.TotalElapsedTime) / 1000
				}
				if sessionMsg.TotalDistance != 0xFFFFFFFF {
					totalDistance += float64(sessionMsg.TotalDistance) / 100
				}
				if activityType == "" {
					activityType = mapSport(sessionMsg.Sport)
				}
				if name == "" && sessionMsg.SportProfileName != "" {
					name = sessionMsg.SportProfileName
				}
			}
		}
	}

	if len(samples) == 0 {
		return nil, fmt.Errorf("no records found in FIT file")
	}

	if activityType == "" {
		activityType = "Workout"
	}

	return &types.DomainEvent{
		Name:          name,
		ActivityType:  activityType,
		StartTime:     startTime,
		TotalDuration: totalDuration,
		TotalDistance: totalDistance,
		Streams:       buildStreams(samples),
	}, nil
}

func parseRecord(recordMsg *mesgdef.Record) sample {
	var s sample

	// Heart rate (0xFF is invalid)
	if recordMsg.HeartRate != 0xFF {
		s.heartRate = float64(recordMsg.HeartRate)
		s.hasHR = true
	}

	// Speed (FIT uses mm/s, we want m/s; 0xFFFF is invalid)
	if recordMsg.Speed != 0xFFFF {
		s.speed = float64(recordMsg.Speed) / 1000
		s.hasSpeed = true
	}

	// Altitude (FIT uses 5 * (altitude + 500) scale)
	if recordMsg.Altitude != 0xFFFF {
		s.altitude = (float64(recordMsg.Altitude) / 5) - 500
		s.hasAlt = true
	}

	// Distance (FIT uses cm)
	if recordMsg.Distance != 0xFFFFFFFF {
		s.distance = float64(recordMsg.Distance) / 100
		s.hasDist = true
	}

	// Position (FIT uses semicircles, convert to decimal degrees)
	if recordMsg.PositionLat != 0x7FFFFFFF && recordMsg.PositionLong != 0x7FFFFFFF {
		const semicircleConst = 11930464.7111 // 2^31 / 180
		s.lat = float64(recordMsg.PositionLat) / semicircleConst
		s.lon = float64(recordMsg.PositionLong) / semicircleConst
		s.hasPos = true
	}

	return s
}

// buildStreams turns per-record samples into per-metric time series. Streams
// for metrics the device never reported are omitted entirely.
func buildStreams(samples []sample) []*types.Stream {
	hr := &types.Stream{Type: types.StreamHeartRate}
	speed := &types.Stream{Type: types.StreamSpeed}
	alt := &types.Stream{Type: types.StreamAltitude}
	dist := &types.Stream{Type: types.StreamDistance}
	lat := &types.Stream{Type: types.StreamLatitude}
	lon := &types.Stream{Type: types.StreamLongitude}

	for _, s := range samples {
		if s.hasHR {
			hr.Data = append(hr.Data, s.heartRate)
		}
		if s.hasSpeed {
			speed.Data = append(speed.Data, s.speed)
		}
		if s.hasAlt {
			alt.Data = append(alt.Data, s.altitude)
		}
		if s.hasDist {
			dist.Data = append(dist.Data, s.distance)
		}
		if s.hasPos {
			lat.Data = append(lat.Data, s.lat)
			lon.Data = append(lon.Data, s.lon)
		}
	}

	var streams []*types.Stream
	for _, s := range []*types.Stream{hr, speed, alt, dist, lat, lon} {
		if len(s.Data) > 0 {
			streams = append(streams, s)
		}
	}
	return streams
}

func mapSport(sport typedef.Sport) string {
	switch sport {
	case typedef.SportRunning:
		return "Run"
	case typedef.SportCycling:
		return "Ride"
	case typedef.SportSwimming:
		return "Swim"
	case typedef.SportWalking:
		return "Walk"
	case typedef.SportHiking:
		return "Hike"
	case typedef.SportRowing:
		return "Row"
	case typedef.SportTraining, typedef.SportFitnessEquipment:
		return "Training"
	default:
		return "Workout"
	}
}
