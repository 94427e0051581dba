package adapters

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bambu-display/application"

	"github.com/spf13/cast"
)

// stageNames maps the stg_cur values reported by the printer.
var stageNames = map[int]string{
	-1:  "idle",
	0:   "printing",
	1:   "auto_bed_leveling",
	2:   "heatbed_preheating",
	3:   "sweeping_xy_mech_mode",
	4:   "changing_filament",
	5:   "m400_pause",
	6:   "paused_filament_runout",
	7:   "heating_hotend",
	8:   "calibrating_extrusion",
	9:   "scanning_bed_surface",
	10:  "inspecting_first_layer",
	11:  "identifying_build_plate_type",
	12:  "calibrating_micro_lidar",
	13:  "homing_toolhead",
	14:  "cleaning_nozzle_tip",
	15:  "checking_extruder_temperature",
	16:  "paused_user",
	17:  "paused_front_cover_falling",
	18:  "calibrating_micro_lidar",
	19:  "calibrating_extrusion_flow",
	20:  "paused_nozzle_temperature_malfunction",
	21:  "paused_heat_bed_temperature_malfunction",
	22:  "filament_unloading",
	23:  "paused_skipped_step",
	24:  "filament_loading",
	25:  "calibrating_motor_noise",
	26:  "paused_ams_lost",
	27:  "paused_low_fan_speed_heat_break",
	28:  "paused_chamber_temperature_control_error",
	29:  "cooling_chamber",
	30:  "paused_user_gcode",
	31:  "motor_noise_showoff",
	32:  "paused_nozzle_filament_covered_detected",
	33:  "paused_cutter_error",
	34:  "paused_first_layer_error",
	35:  "paused_nozzle_clog",
	255: "idle",
}

// StageName returns the name of a stg_cur value, empty when unknown.
func StageName(stage int) string {
	return stageNames[stage]
}

// PrinterReport accumulates the "print" objects of device reports. Printers
// send a full report after pushall and partial updates afterwards.
type PrinterReport struct {
	fields map[string]any
}

func NewPrinterReport() *PrinterReport {
	return &PrinterReport{fields: make(map[string]any)}
}

// Merge applies one MQTT payload. Payloads without a print object are
// ignored and reported as such.
func (r *PrinterReport) Merge(payload []byte) (bool, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return false, fmt.Errorf("decode report: %w", err)
	}
	raw, ok := envelope["print"]
	if !ok {
		return false, nil
	}

	var update map[string]any
	if err := json.Unmarshal(raw, &update); err != nil {
		return false, fmt.Errorf("decode print report: %w", err)
	}
	mergeFields(r.fields, update)
	return true, nil
}

func (r *PrinterReport) Empty() bool {
	return len(r.fields) == 0
}

func mergeFields(dst, src map[string]any) {
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			if existing, ok := dst[k].(map[string]any); ok {
				mergeFields(existing, sub)
				continue
			}
		}
		dst[k] = v
	}
}

// JobKey identifies the current job. It changes whenever a new job starts.
func (r *PrinterReport) JobKey() string {
	name := r.str("subtask_name")
	start := r.str("gcode_start_time")
	if name == "" && start == "" {
		return ""
	}
	return name + "@" + start
}

func (r *PrinterReport) Status() application.JobStatus {
	status := application.JobStatus{
		State:            strings.ToUpper(r.str("gcode_state")),
		PrintType:        r.str("print_type"),
		JobName:          r.str("subtask_name"),
		Progress:         r.num("mc_percent"),
		Layer:            r.num("layer_num"),
		TotalLayers:      r.num("total_layer_num"),
		RemainingMinutes: r.num("mc_remaining_time"),
		Nozzle: application.Temperature{
			Current: r.float("nozzle_temper"),
			Target:  r.float("nozzle_target_temper"),
		},
		Bed: application.Temperature{
			Current: r.float("bed_temper"),
			Target:  r.float("bed_target_temper"),
		},
		PrintError: r.num("print_error"),
	}

	if _, ok := r.fields["stg_cur"]; ok {
		status.Stage = StageName(r.num("stg_cur"))
	}
	if start := r.num("gcode_start_time"); start > 0 {
		status.StartedAt = time.Unix(int64(start), 0)
	}
	status.AMS = parseAMS(r.fields["ams"])
	status.HMSErrors = parseHMS(r.fields["hms"])
	return status
}

func (r *PrinterReport) str(key string) string {
	return strings.TrimSpace(cast.ToString(r.fields[key]))
}

func (r *PrinterReport) num(key string) int {
	return toInt(r.fields[key])
}

func (r *PrinterReport) float(key string) float64 {
	return toFloat(r.fields[key])
}

// toFloat accepts JSON numbers and numeric strings. Strings are parsed as
// decimal so values like "08" do not turn octal.
func toFloat(v any) float64 {
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0
		}
		return f
	}
	return cast.ToFloat64(v)
}

func toInt(v any) int {
	return int(toFloat(v))
}

func parseAMS(v any) application.AMS {
	ams := application.AMS{TrayNow: -1}
	m, ok := v.(map[string]any)
	if !ok {
		return ams
	}

	if raw, ok := m["tray_now"]; ok {
		// 254 is the external spool, 255 means nothing loaded
		if n := toInt(raw); n >= 0 && n < 254 {
			ams.TrayNow = n
		}
	}

	units, _ := m["ams"].([]any)
	for _, u := range units {
		unitMap, ok := u.(map[string]any)
		if !ok {
			continue
		}
		unit := application.AMSUnit{HumidityIndex: toInt(unitMap["humidity"])}
		trays, _ := unitMap["tray"].([]any)
		for _, t := range trays {
			trayMap, ok := t.(map[string]any)
			if !ok {
				continue
			}
			name := strings.TrimSpace(cast.ToString(trayMap["tray_type"]))
			unit.Trays = append(unit.Trays, application.AMSTray{
				Name:  name,
				Color: strings.TrimSpace(cast.ToString(trayMap["tray_color"])),
				Empty: name == "",
			})
		}
		ams.Units = append(ams.Units, unit)
	}
	return ams
}

func parseHMS(v any) []string {
	entries, ok := v.([]any)
	if !ok {
		return nil
	}
	var codes []string
	for _, e := range entries {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		attr := uint32(toFloat(m["attr"]))
		code := uint32(toFloat(m["code"]))
		codes = append(codes, fmt.Sprintf("HMS_%04X_%04X_%04X_%04X", attr>>16, attr&0xFFFF, code>>16, code&0xFFFF))
	}
	return codes
}
