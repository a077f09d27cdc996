package influx

import (
	"iter"
	"strconv"

	"github.com/unilens/unilens/pkg/dpi"
	"github.com/unilens/unilens/pkg/unifi"
)

// Measurement names for the three DPI datasets.
const (
	MeasurementTrafficByApp     = "traffic_by_app"
	MeasurementTotalTrafficApp  = "total_traffic_by_app"
	MeasurementTrafficByCountry = "traffic_by_country"
)

const nsPerMs = int64(1_000_000)

// ClientAppPoints yields one line-protocol point per (client, application)
// pair in data, timestamped at timestampMs converted to nanoseconds. The
// sequence is lazy and restartable; consuming it performs no I/O. Entries
// without a client identity are skipped. A dataset without the
// client_usage_by_app collection yields nothing.
func ClientAppPoints(data *unifi.TrafficData, timestampMs int64) iter.Seq[string] {
	return func(yield func(string) bool) {
		if data == nil {
			return
		}
		ts := timestampMs * nsPerMs

		for _, entry := range data.ClientUsageByApp {
			client := entry.Client
			if client == nil || client.MAC == "" {
				continue
			}

			for _, usage := range entry.UsageByApp {
				p := NewPoint(MeasurementTrafficByApp, ts).
					AddTag("client_mac", client.MAC).
					AddTag("client_name", client.DisplayName()).
					AddTag("wired", strconv.FormatBool(client.IsWired)).
					AddTag("app", strconv.Itoa(usage.Application)).
					AddTag("cat", strconv.Itoa(usage.Category))

				addNameTags(p, usage.ApplicationName, usage.CategoryName, usage.Category, usage.Application)

				p.AddIntField("bytes_rx", usage.BytesReceived).
					AddIntField("bytes_tx", usage.BytesTransmitted).
					AddIntField("bytes_total", usage.TotalBytes).
					AddIntField("activity", usage.ActivitySeconds)

				if !yield(p.String()) {
					return
				}
			}
		}
	}
}

// TotalAppPoints yields one point per site-wide application aggregate in
// data. A dataset without the total_usage_by_app collection yields nothing.
func TotalAppPoints(data *unifi.TrafficData, timestampMs int64) iter.Seq[string] {
	return func(yield func(string) bool) {
		if data == nil {
			return
		}
		ts := timestampMs * nsPerMs

		for _, usage := range data.TotalUsageByApp {
			p := NewPoint(MeasurementTotalTrafficApp, ts).
				AddTag("app", strconv.Itoa(usage.Application)).
				AddTag("cat", strconv.Itoa(usage.Category))

			addNameTags(p, usage.ApplicationName, usage.CategoryName, usage.Category, usage.Application)

			p.AddIntField("bytes_rx", usage.BytesReceived).
				AddIntField("bytes_tx", usage.BytesTransmitted).
				AddIntField("bytes_total", usage.TotalBytes).
				AddIntField("clients", usage.ClientCount)

			if !yield(p.String()) {
				return
			}
		}
	}
}

// CountryPoints yields one point per country aggregate in data. Traffic the
// classifier could not geolocate carries an empty country code and is tagged
// "unknown".
func CountryPoints(data *unifi.CountryData, timestampMs int64) iter.Seq[string] {
	return func(yield func(string) bool) {
		if data == nil {
			return
		}
		ts := timestampMs * nsPerMs

		for _, usage := range data.UsageByCountry {
			p := NewPoint(MeasurementTrafficByCountry, ts).
				AddTag("country", usage.Country).
				AddIntField("bytes_rx", usage.BytesReceived).
				AddIntField("bytes_tx", usage.BytesTransmitted).
				AddIntField("bytes_total", usage.TotalBytes)

			if !yield(p.String()) {
				return
			}
		}
	}
}

// addNameTags attaches app_name and cat_name when a display name is known,
// preferring the controller payload over the static resolver tables.
func addNameTags(p *Point, appName, catName string, cat, app int) {
	if appName == "" {
		appName = dpi.AppName(cat, app)
	}
	if appName != "" {
		p.AddTag("app_name", appName)
	}

	if catName == "" {
		catName = dpi.CategoryName(cat)
	}
	if catName != "" {
		p.AddTag("cat_name", catName)
	}
}
