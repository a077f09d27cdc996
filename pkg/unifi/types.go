package unifi

// ClientInfo identifies the station a usage entry belongs to. Controllers
// omit name and hostname for clients they have not profiled yet.
type ClientInfo struct {
	MAC      string `json:"mac"`
	Name     string `json:"name,omitempty"`
	Hostname string `json:"hostname,omitempty"`
	IsWired  bool   `json:"is_wired"`
}

// DisplayName returns the friendly name for the client: configured name,
// else hostname, else the MAC address.
func (c *ClientInfo) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	if c.Hostname != "" {
		return c.Hostname
	}
	return c.MAC
}

// ClientAppUsage is one (client, application) counter row from the DPI
// engine. Counters the controller has not accumulated yet are absent and
// decode to zero.
type ClientAppUsage struct {
	Application      int    `json:"application"`
	Category         int    `json:"category"`
	ApplicationName  string `json:"application_name,omitempty"`
	CategoryName     string `json:"category_name,omitempty"`
	BytesReceived    int64  `json:"bytes_received,omitempty"`
	BytesTransmitted int64  `json:"bytes_transmitted,omitempty"`
	TotalBytes       int64  `json:"total_bytes,omitempty"`
	ActivitySeconds  int64  `json:"activity_seconds,omitempty"`
}

// ClientUsage groups one client's per-application rows. Entries without a
// client identity occur on some firmware versions and are skipped downstream.
type ClientUsage struct {
	Client     *ClientInfo      `json:"client,omitempty"`
	UsageByApp []ClientAppUsage `json:"usage_by_app,omitempty"`
}

// TotalAppUsage is a site-wide aggregate per application.
type TotalAppUsage struct {
	Application      int    `json:"application"`
	Category         int    `json:"category"`
	ApplicationName  string `json:"application_name,omitempty"`
	CategoryName     string `json:"category_name,omitempty"`
	BytesReceived    int64  `json:"bytes_received,omitempty"`
	BytesTransmitted int64  `json:"bytes_transmitted,omitempty"`
	TotalBytes       int64  `json:"total_bytes,omitempty"`
	ClientCount      int64  `json:"client_count,omitempty"`
}

// CountryUsage is a site-wide aggregate per destination country. Country is
// empty when the classifier could not geolocate the traffic.
type CountryUsage struct {
	Country          string `json:"country,omitempty"`
	BytesReceived    int64  `json:"bytes_received,omitempty"`
	BytesTransmitted int64  `json:"bytes_transmitted,omitempty"`
	TotalBytes       int64  `json:"total_bytes,omitempty"`
}

// TrafficData is the app-usage payload. Both collections are optional; a
// controller with DPI disabled returns an empty object.
type TrafficData struct {
	ClientUsageByApp []ClientUsage   `json:"client_usage_by_app,omitempty"`
	TotalUsageByApp  []TotalAppUsage `json:"total_usage_by_app,omitempty"`
}

// CountryData is the country-usage payload.
type CountryData struct {
	UsageByCountry []CountryUsage `json:"usage_by_country,omitempty"`
}
