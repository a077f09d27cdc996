// Package dpi resolves the numeric application and category identifiers
// assigned by the UniFi controller's traffic classifier to display names.
//
// Recent controller versions include application_name/category_name fields in
// the DPI payloads themselves; the tables here are a fallback for firmware
// that only reports the numeric ids. The mapping is static vendor data, so
// lookups never fail: unknown ids resolve to an empty string and the caller
// decides whether to tag the point at all.
package dpi

import "strconv"

// categories mirrors the classifier's top-level category table.
var categories = map[int]string{
	0:   "Instant Messaging",
	1:   "Peer-to-Peer",
	3:   "File Transfer",
	4:   "Streaming Media",
	5:   "Mail and Collaboration",
	6:   "Voice over IP",
	7:   "Database",
	8:   "Games",
	9:   "Network Management",
	10:  "Remote Access",
	11:  "Tunneling and Proxy",
	12:  "Investment Platforms",
	13:  "Web Services",
	14:  "Security Updates",
	15:  "Web Instant Messaging",
	16:  "Business Tools",
	17:  "Network Protocols",
	18:  "Network Protocols",
	19:  "Network Protocols",
	20:  "Network Protocols",
	23:  "Private Protocol",
	24:  "Social Networks",
	255: "Unknown",
}

// applications is keyed by category id, then application id within that
// category. Only commonly observed entries are carried; the controller
// payload's own name fields take precedence when present.
var applications = map[int]map[int]string{
	0: {
		1:  "ICQ/AIM",
		6:  "IRC",
		62: "Telegram",
		84: "WhatsApp",
		94: "Skype",
	},
	1: {
		1:  "BitTorrent",
		12: "eDonkey",
	},
	3: {
		7:   "FTP",
		62:  "Dropbox",
		120: "Google Drive",
		133: "OneDrive",
	},
	4: {
		1:   "MMS",
		10:  "RTSP",
		63:  "YouTube",
		65:  "Netflix",
		112: "Spotify",
		130: "Twitch",
		163: "Disney+",
	},
	5: {
		1:   "SMTP",
		3:   "POP3",
		4:   "IMAP",
		24:  "Gmail",
		111: "Microsoft 365",
	},
	6: {
		1:  "SIP",
		45: "Zoom",
		48: "FaceTime",
	},
	8: {
		12:  "Steam",
		118: "Xbox Live",
		133: "PlayStation Network",
		149: "Nintendo Online",
	},
	9: {
		3:  "DNS",
		5:  "DHCP",
		9:  "NTP",
		16: "SNMP",
	},
	10: {
		1: "SSH",
		3: "Telnet",
		5: "RDP",
		7: "VNC",
	},
	11: {
		14: "OpenVPN",
		44: "WireGuard",
	},
	13: {
		1:   "HTTP",
		84:  "Google",
		123: "Amazon",
		219: "Apple",
		222: "Cloudflare",
	},
	14: {
		1: "Windows Update",
		4: "Apple Update",
	},
	24: {
		1:  "Facebook",
		2:  "Twitter",
		7:  "LinkedIn",
		21: "Instagram",
		56: "TikTok",
		70: "Reddit",
	},
	255: {
		0: "Unknown",
	},
}

// CategoryName returns the display name for a category id, or "" when the id
// is not in the table.
func CategoryName(cat int) string {
	return categories[cat]
}

// AppName returns the display name for an application id within a category,
// or "" when the pair is not in the table.
func AppName(cat, app int) string {
	return applications[cat][app]
}

// Label returns a compact identifier for logging: the application name when
// known, otherwise the raw "cat:app" pair.
func Label(cat, app int) string {
	if name := AppName(cat, app); name != "" {
		return name
	}
	return strconv.Itoa(cat) + ":" + strconv.Itoa(app)
}
