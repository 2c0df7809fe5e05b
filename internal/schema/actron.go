package schema

import (
	"fmt"
	"sort"

	"github.com/nerrad567/que-core/internal/attribute"
	"github.com/nerrad567/que-core/internal/attrpath"
)

// MaxZones is the number of zones a Que controller supports.
const MaxZones = 8

// Placeholders used by the Actron Que catalog.
const (
	ZonePlaceholder   = "[zone]"
	SensorPlaceholder = "{sensor}"
)

// Group names of the default catalog.
const (
	GroupZones     = "zones"
	GroupSensors   = "sensors"
	GroupLiveStats = "live_stats"
	GroupSettings  = "settings"
)

// Zone field templates.
const (
	ZoneCanOperate     = "RemoteZoneInfo.[zone].CanOperate"
	ZoneLiveHumidity   = "RemoteZoneInfo.[zone].LiveHumidity_pc"
	ZoneLiveHysteresis = "RemoteZoneInfo.[zone].LiveTempHysteresis_oC"
	ZoneLiveTemp       = "RemoteZoneInfo.[zone].LiveTemp_oC"
	ZoneMaxCool        = "RemoteZoneInfo.[zone].MaxCoolSetpoint"
	ZoneMaxHeat        = "RemoteZoneInfo.[zone].MaxHeatSetpoint"
	ZoneMinCool        = "RemoteZoneInfo.[zone].MinCoolSetpoint"
	ZoneMinHeat        = "RemoteZoneInfo.[zone].MinHeatSetpoint"
	ZoneExists         = "RemoteZoneInfo.[zone].NV_Exists"
	ZoneTitle          = "RemoteZoneInfo.[zone].NV_Title"
	ZoneVAV            = "RemoteZoneInfo.[zone].NV_VAV"
	ZoneSetup          = "RemoteZoneInfo.[zone].NV_amSetup"
	ZoneCoolSetpoint   = "RemoteZoneInfo.[zone].TemperatureSetpoint_Cool_oC"
	ZoneHeatSetpoint   = "RemoteZoneInfo.[zone].TemperatureSetpoint_Heat_oC"
	ZonePosition       = "RemoteZoneInfo.[zone].ZonePosition"
	ZoneEnabled        = "UserAirconSettings.EnabledZones.[zone]"
	ZoneSavedState     = "UserAirconSettings.NV_SavedZoneState.[zone]"
)

// Settings paths.
const (
	SettingPower        = "UserAirconSettings.isOn"
	SettingMode         = "UserAirconSettings.Mode"
	SettingFanMode      = "UserAirconSettings.FanMode"
	SettingCoolSetpoint = "UserAirconSettings.TemperatureSetpoint_Cool_oC"
	SettingHeatSetpoint = "UserAirconSettings.TemperatureSetpoint_Heat_oC"
)

// Default builds the Actron Que catalog with the zone group bounded by maxZones.
func Default(maxZones int) *Catalog {
	zones := NewGroup(GroupZones, ZonePlaceholder, maxZones, false,
		Field{Template: ZoneCanOperate, Kind: attribute.KindBool},
		Field{Template: ZoneLiveHumidity, Kind: attribute.KindInt},
		Field{Template: ZoneLiveHysteresis, Kind: attribute.KindFloat},
		Field{Template: ZoneLiveTemp, Kind: attribute.KindFloat},
		Field{Template: ZoneMaxCool, Kind: attribute.KindInt},
		Field{Template: ZoneMaxHeat, Kind: attribute.KindInt},
		Field{Template: ZoneMinCool, Kind: attribute.KindInt},
		Field{Template: ZoneMinHeat, Kind: attribute.KindInt},
		Field{Template: ZoneExists, Kind: attribute.KindBool},
		Field{Template: ZoneTitle, Kind: attribute.KindText},
		Field{Template: ZoneVAV, Kind: attribute.KindBool},
		Field{Template: ZoneSetup, Kind: attribute.KindBool},
		Writable(ZoneCoolSetpoint, attribute.KindInt),
		Writable(ZoneHeatSetpoint, attribute.KindInt),
		Field{Template: ZonePosition, Kind: attribute.KindInt},
		Writable(ZoneEnabled, attribute.KindInt),
		Writable(ZoneSavedState, attribute.KindInt),
	)

	sensors := NewGroup(GroupSensors, ZonePlaceholder, maxZones, false,
		Field{Template: "RemoteZoneInfo.[zone].Sensors.{sensor}.Connected", Kind: attribute.KindBool},
		Field{Template: "RemoteZoneInfo.[zone].Sensors.{sensor}.NV_Kind", Kind: attribute.KindText},
		Field{Template: "RemoteZoneInfo.[zone].Sensors.{sensor}.NV_isPaired", Kind: attribute.KindBool},
		Field{Template: "RemoteZoneInfo.[zone].Sensors.{sensor}.Signal_of3", Kind: attribute.KindInt},
		Field{Template: "RemoteZoneInfo.[zone].Sensors.{sensor}.lastRssi", Kind: attribute.KindInt},
		Field{Template: "RemoteZoneInfo.[zone].Sensors.{sensor}.TX_Power", Kind: attribute.KindInt},
		Field{Template: "RemoteZoneInfo.[zone].Sensors.{sensor}.FW_Version", Kind: attribute.KindInt},
		Field{Template: "RemoteZoneInfo.[zone].Sensors.{sensor}.Battery_pc", Kind: attribute.KindInt},
	)

	stats := NewGroup(GroupLiveStats, "", 0, false,
		Field{Template: "Cloud.ConnectionState", Kind: attribute.KindText},
		Field{Template: "Cloud.ReceivedPackets", Kind: attribute.KindInt},
		Field{Template: "Cloud.SentPackets", Kind: attribute.KindInt},
		Field{Template: "SystemState.CpuFreq_MHz", Kind: attribute.KindInt},
		Field{Template: "SystemState.CpuId", Kind: attribute.KindText},
		Field{Template: "SystemState.CpuTempMax_oC", Kind: attribute.KindFloat},
		Field{Template: "SystemState.CpuTemp_oC", Kind: attribute.KindFloat},
		Field{Template: "SystemState.LinkedToMaster", Kind: attribute.KindInt},
		Field{Template: "SystemState.MemUsage_K", Kind: attribute.KindInt},
		Field{Template: "SystemState.NV_LastBootFromUnsafeUTC", Kind: attribute.KindText},
		Field{Template: "SystemState.ScreenIsOn", Kind: attribute.KindBool},
		Field{Template: "SystemState.WCFirmwareVersion", Kind: attribute.KindText},
		Field{Template: "SystemState.ZCFirmwareVersion", Kind: attribute.KindText},
		Field{Template: "SystemState.hasInternet", Kind: attribute.KindBool},
	)

	settings := NewGroup(GroupSettings, "", 0, true,
		Field{Template: SettingPower, Kind: attribute.KindBool},
		Field{Template: SettingMode, Kind: attribute.KindText},
		Field{Template: SettingFanMode, Kind: attribute.KindText},
		Field{Template: SettingCoolSetpoint, Kind: attribute.KindFloat},
		Field{Template: SettingHeatSetpoint, Kind: attribute.KindFloat},
	)

	c, err := NewCatalog(zones, sensors, stats, settings)
	if err != nil {
		// The built-in groups are static.
		panic(fmt.Sprintf("schema: default catalog: %v", err))
	}
	return c
}

// Logical command names accepted by CommandPath.
var commandPaths = map[string]string{
	"power":         SettingPower,
	"mode":          SettingMode,
	"fan_mode":      SettingFanMode,
	"cool_setpoint": SettingCoolSetpoint,
	"heat_setpoint": SettingHeatSetpoint,
}

// Zone-scoped command names accepted by ZoneCommandPath.
var zoneCommandPaths = map[string]string{
	"enabled":       ZoneEnabled,
	"cool_setpoint": ZoneCoolSetpoint,
	"heat_setpoint": ZoneHeatSetpoint,
}

// CommandPath maps a logical command name to its settings path.
func CommandPath(name string) (string, error) {
	p, ok := commandPaths[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	return p, nil
}

// ZoneCommandPath maps a zone command name to the concrete path for zone index.
func ZoneCommandPath(name string, index int) (string, error) {
	t, ok := zoneCommandPaths[name]
	if !ok {
		return "", fmt.Errorf("%w: zone %q", ErrUnknownCommand, name)
	}
	return attrpath.SubstituteIndex(t, ZonePlaceholder, index), nil
}

// CommandNames returns the sorted logical command names.
func CommandNames() []string {
	names := make([]string, 0, len(commandPaths))
	for n := range commandPaths {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
