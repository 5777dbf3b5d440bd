package link

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tiiuae/missionrunner/internal/geo"
	"github.com/tiiuae/missionrunner/internal/mission"
)

// ArduCopter custom modes
var copterModes = map[string]uint32{
	ModeStabilize: 0,
	"ACRO":        1,
	"ALT_HOLD":    2,
	ModeAuto:      3,
	ModeGuided:    4,
	ModeLoiter:    5,
	ModeRTL:       6,
	"CIRCLE":      7,
	ModeLand:      9,
	"BRAKE":       17,
}

type MAVLinkConf struct {
	SystemID         byte          `yaml:"system_id"`
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`
	UploadTimeout    time.Duration `yaml:"upload_timeout"`
	// StreamRate in Hz requested for all telemetry streams.
	StreamRate uint16 `yaml:"stream_rate"`
}

func DefaultMAVLinkConf() MAVLinkConf {
	return MAVLinkConf{
		SystemID:         255,
		HeartbeatTimeout: 30 * time.Second,
		UploadTimeout:    5 * time.Second,
		StreamRate:       4,
	}
}

type uploadEvent struct {
	seq    int
	ack    bool
	result common.MAV_MISSION_RESULT
}

type mavlinkLink struct {
	node *gomavlib.Node
	conf MAVLinkConf

	heartbeat     chan struct{}
	heartbeatOnce sync.Once
	done          chan struct{}

	mu              sync.Mutex
	targetSystem    uint8
	targetComponent uint8
	armed           bool
	customMode      uint32
	systemStatus    common.MAV_STATE
	gpsFix          common.GPS_FIX_TYPE
	position        geo.Coordinate
	home            *geo.Coordinate
	cursor          int
	upload          chan uploadEvent
	closed          bool
}

func dialMAVLink(ctx context.Context, endpoint gomavlib.EndpointConf, conf MAVLinkConf) (Link, error) {
	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints:   []gomavlib.EndpointConf{endpoint},
		Dialect:     common.Dialect,
		OutVersion:  gomavlib.V2,
		OutSystemID: conf.SystemID,
	})
	if err != nil {
		return nil, errors.Wrapf(ErrConnection, "%v", err)
	}

	l := &mavlinkLink{
		node:      node,
		conf:      conf,
		heartbeat: make(chan struct{}),
		done:      make(chan struct{}),
	}
	go l.run()

	select {
	case <-l.heartbeat:
	case <-time.After(conf.HeartbeatTimeout):
		l.Close()
		return nil, errors.Wrapf(ErrConnection, "no autopilot heartbeat within %v", conf.HeartbeatTimeout)
	case <-ctx.Done():
		l.Close()
		return nil, errors.Wrapf(ErrConnection, "%v", ctx.Err())
	}

	l.mu.Lock()
	log.WithFields(log.Fields{"system": l.targetSystem, "component": l.targetComponent}).Info("MAVLink: autopilot found")
	l.mu.Unlock()

	l.requestStreams()
	l.sendCommand(common.MAV_CMD_GET_HOME_POSITION, [7]float32{})

	return l, nil
}

func (l *mavlinkLink) run() {
	defer close(l.done)
	for evt := range l.node.Events() {
		frm, ok := evt.(*gomavlib.EventFrame)
		if !ok {
			continue
		}
		l.handleMessage(frm.SystemID(), frm.ComponentID(), frm.Message())
	}
}

func (l *mavlinkLink) handleMessage(systemID byte, componentID byte, msg message.Message) {
	switch m := msg.(type) {
	case *common.MessageHeartbeat:
		if m.Autopilot == common.MAV_AUTOPILOT_INVALID {
			// ground stations and companions
			return
		}
		l.mu.Lock()
		l.targetSystem = systemID
		l.targetComponent = componentID
		l.armed = m.BaseMode&common.MAV_MODE_FLAG_SAFETY_ARMED != 0
		l.customMode = m.CustomMode
		l.systemStatus = m.SystemStatus
		l.mu.Unlock()
		l.heartbeatOnce.Do(func() { close(l.heartbeat) })
	case *common.MessageGpsRawInt:
		l.mu.Lock()
		l.gpsFix = m.FixType
		l.mu.Unlock()
	case *common.MessageGlobalPositionInt:
		l.mu.Lock()
		l.position = geo.Coordinate{
			Lat: float64(m.Lat) / 1e7,
			Lon: float64(m.Lon) / 1e7,
			Alt: float64(m.RelativeAlt) / 1000,
		}
		l.mu.Unlock()
	case *common.MessageHomePosition:
		l.mu.Lock()
		l.home = &geo.Coordinate{
			Lat: float64(m.Latitude) / 1e7,
			Lon: float64(m.Longitude) / 1e7,
		}
		l.mu.Unlock()
	case *common.MessageMissionCurrent:
		l.mu.Lock()
		l.cursor = int(m.Seq)
		l.mu.Unlock()
	case *common.MessageMissionRequestInt:
		l.notifyUpload(uploadEvent{seq: int(m.Seq)})
	case *common.MessageMissionRequest:
		l.notifyUpload(uploadEvent{seq: int(m.Seq)})
	case *common.MessageMissionAck:
		l.notifyUpload(uploadEvent{ack: true, result: m.Type})
	}
}

func (l *mavlinkLink) notifyUpload(ev uploadEvent) {
	l.mu.Lock()
	ch := l.upload
	l.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- ev:
	default:
		log.Warn("MAVLink: mission upload event dropped")
	}
}

func (l *mavlinkLink) targets() (uint8, uint8, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, 0, ErrClosed
	}
	return l.targetSystem, l.targetComponent, nil
}

func (l *mavlinkLink) write(msg message.Message) {
	l.node.WriteMessageAll(msg)
}

func (l *mavlinkLink) sendCommand(cmd common.MAV_CMD, params [7]float32) error {
	sys, comp, err := l.targets()
	if err != nil {
		return err
	}
	l.write(&common.MessageCommandLong{
		TargetSystem:    sys,
		TargetComponent: comp,
		Command:         cmd,
		Param1:          params[0],
		Param2:          params[1],
		Param3:          params[2],
		Param4:          params[3],
		Param5:          params[4],
		Param6:          params[5],
		Param7:          params[6],
	})
	return nil
}

func (l *mavlinkLink) requestStreams() {
	sys, comp, err := l.targets()
	if err != nil {
		return
	}
	l.write(&common.MessageRequestDataStream{
		TargetSystem:    sys,
		TargetComponent: comp,
		ReqStreamId:     uint8(common.MAV_DATA_STREAM_ALL),
		ReqMessageRate:  l.conf.StreamRate,
		StartStop:       1,
	})
}

// IsArmable reports whether the autopilot finished booting and has a GPS fix.
func (l *mavlinkLink) IsArmable() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false, ErrClosed
	}
	return l.systemStatus >= common.MAV_STATE_STANDBY && l.gpsFix >= common.GPS_FIX_TYPE_2D_FIX, nil
}

func (l *mavlinkLink) SetMode(name string) error {
	mode, ok := copterModes[name]
	if !ok {
		return errors.Errorf("unknown flight mode %q", name)
	}
	return l.sendCommand(common.MAV_CMD_DO_SET_MODE, [7]float32{
		float32(common.MAV_MODE_FLAG_CUSTOM_MODE_ENABLED), float32(mode),
	})
}

func (l *mavlinkLink) SetArmed(armed bool) error {
	var p1 float32
	if armed {
		p1 = 1
	}
	return l.sendCommand(common.MAV_CMD_COMPONENT_ARM_DISARM, [7]float32{p1})
}

func (l *mavlinkLink) IsArmed() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false, ErrClosed
	}
	return l.armed, nil
}

func (l *mavlinkLink) Takeoff(alt float64) error {
	return l.sendCommand(common.MAV_CMD_NAV_TAKEOFF, [7]float32{6: float32(alt)})
}

func (l *mavlinkLink) Position() (geo.Coordinate, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return geo.Coordinate{}, ErrClosed
	}
	return l.position, nil
}

func (l *mavlinkLink) HomeLocation() (geo.Coordinate, error) {
	l.mu.Lock()
	home := l.home
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return geo.Coordinate{}, ErrClosed
	}
	if home == nil {
		l.sendCommand(common.MAV_CMD_GET_HOME_POSITION, [7]float32{})
		return geo.Coordinate{}, ErrNoHome
	}
	return *home, nil
}

func (l *mavlinkLink) MissionClear() error {
	sys, comp, err := l.targets()
	if err != nil {
		return err
	}
	l.write(&common.MessageMissionClearAll{
		TargetSystem:    sys,
		TargetComponent: comp,
	})
	return nil
}

// MissionUpload runs the mission upload handshake. Sequence 0 carries the
// home position, mission items follow from sequence 1.
func (l *mavlinkLink) MissionUpload(items []mission.Waypoint) error {
	sys, comp, err := l.targets()
	if err != nil {
		return err
	}

	ch := make(chan uploadEvent, 16)
	l.mu.Lock()
	l.upload = ch
	home := geo.Coordinate{}
	if l.home != nil {
		home = *l.home
	}
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.upload = nil
		l.mu.Unlock()
	}()

	wire := make([]*common.MessageMissionItemInt, 0, len(items)+1)
	wire = append(wire, missionItem(sys, comp, 0, mission.Waypoint{
		Command: mission.CommandNavWaypoint,
		Target:  home,
	}))
	for i, item := range items {
		wire = append(wire, missionItem(sys, comp, uint16(i+1), item))
	}

	l.write(&common.MessageMissionCount{
		TargetSystem:    sys,
		TargetComponent: comp,
		Count:           uint16(len(wire)),
	})

	for {
		select {
		case ev := <-ch:
			if ev.ack {
				if ev.result != common.MAV_MISSION_ACCEPTED {
					return errors.Errorf("mission rejected by vehicle: %v", ev.result)
				}
				log.WithField("items", len(wire)).Info("MAVLink: mission uploaded")
				return nil
			}
			if ev.seq < 0 || ev.seq >= len(wire) {
				return errors.Errorf("vehicle requested mission item %d of %d", ev.seq, len(wire))
			}
			l.write(wire[ev.seq])
		case <-time.After(l.conf.UploadTimeout):
			return errors.Errorf("mission upload: no response within %v", l.conf.UploadTimeout)
		}
	}
}

func missionItem(sys, comp uint8, seq uint16, wp mission.Waypoint) *common.MessageMissionItemInt {
	cmd := common.MAV_CMD_NAV_WAYPOINT
	if wp.Command == mission.CommandTakeoff {
		cmd = common.MAV_CMD_NAV_TAKEOFF
	}
	frame := common.MAV_FRAME_GLOBAL_RELATIVE_ALT
	if seq == 0 {
		frame = common.MAV_FRAME_GLOBAL
	}
	return &common.MessageMissionItemInt{
		TargetSystem:    sys,
		TargetComponent: comp,
		Seq:             seq,
		Frame:           frame,
		Command:         cmd,
		Autocontinue:    1,
		X:               int32(math.Round(wp.Target.Lat * 1e7)),
		Y:               int32(math.Round(wp.Target.Lon * 1e7)),
		Z:               float32(wp.Target.Alt),
	}
}

func (l *mavlinkLink) MissionSetCursor(cursor int) error {
	sys, comp, err := l.targets()
	if err != nil {
		return err
	}
	l.write(&common.MessageMissionSetCurrent{
		TargetSystem:    sys,
		TargetComponent: comp,
		Seq:             uint16(cursor),
	})
	l.mu.Lock()
	l.cursor = cursor
	l.mu.Unlock()
	return nil
}

func (l *mavlinkLink) MissionCursor() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, ErrClosed
	}
	return l.cursor, nil
}

func (l *mavlinkLink) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.closed = true
	l.mu.Unlock()

	l.node.Close()
	<-l.done
	return nil
}
