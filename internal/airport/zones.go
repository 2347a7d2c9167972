package airport

// Embedded metadata for the airports the product operates with. Zones are
// IANA names resolved through the tzdata bundle the binaries import.
// Coordinates are approximate airport reference points, precise enough for
// weather lookups.
var airports = map[string]Airport{
	// United States
	"JFK": {IATA: "JFK", City: "New York", Zone: "America/New_York", Lat: 40.64, Lon: -73.78},
	"EWR": {IATA: "EWR", City: "Newark", Zone: "America/New_York", Lat: 40.69, Lon: -74.17},
	"LGA": {IATA: "LGA", City: "New York", Zone: "America/New_York", Lat: 40.78, Lon: -73.87},
	"BOS": {IATA: "BOS", City: "Boston", Zone: "America/New_York", Lat: 42.36, Lon: -71.01},
	"PHL": {IATA: "PHL", City: "Philadelphia", Zone: "America/New_York", Lat: 39.87, Lon: -75.24},
	"MIA": {IATA: "MIA", City: "Miami", Zone: "America/New_York", Lat: 25.79, Lon: -80.29},
	"FLL": {IATA: "FLL", City: "Fort Lauderdale", Zone: "America/New_York", Lat: 26.07, Lon: -80.15},
	"MCO": {IATA: "MCO", City: "Orlando", Zone: "America/New_York", Lat: 28.43, Lon: -81.31},
	"TPA": {IATA: "TPA", City: "Tampa", Zone: "America/New_York", Lat: 27.98, Lon: -82.53},
	"ATL": {IATA: "ATL", City: "Atlanta", Zone: "America/New_York", Lat: 33.64, Lon: -84.43},
	"IAD": {IATA: "IAD", City: "Washington", Zone: "America/New_York", Lat: 38.95, Lon: -77.46},
	"DCA": {IATA: "DCA", City: "Washington", Zone: "America/New_York", Lat: 38.85, Lon: -77.04},
	"CLT": {IATA: "CLT", City: "Charlotte", Zone: "America/New_York", Lat: 35.21, Lon: -80.94},
	"ORD": {IATA: "ORD", City: "Chicago", Zone: "America/Chicago", Lat: 41.97, Lon: -87.91},
	"MDW": {IATA: "MDW", City: "Chicago", Zone: "America/Chicago", Lat: 41.79, Lon: -87.75},
	"DFW": {IATA: "DFW", City: "Dallas", Zone: "America/Chicago", Lat: 32.90, Lon: -97.04},
	"IAH": {IATA: "IAH", City: "Houston", Zone: "America/Chicago", Lat: 29.98, Lon: -95.34},
	"AUS": {IATA: "AUS", City: "Austin", Zone: "America/Chicago", Lat: 30.19, Lon: -97.67},
	"MSY": {IATA: "MSY", City: "New Orleans", Zone: "America/Chicago", Lat: 29.99, Lon: -90.26},
	"MSP": {IATA: "MSP", City: "Minneapolis", Zone: "America/Chicago", Lat: 44.88, Lon: -93.22},
	"STL": {IATA: "STL", City: "St. Louis", Zone: "America/Chicago", Lat: 38.75, Lon: -90.37},
	"DEN": {IATA: "DEN", City: "Denver", Zone: "America/Denver", Lat: 39.86, Lon: -104.67},
	"SLC": {IATA: "SLC", City: "Salt Lake City", Zone: "America/Denver", Lat: 40.79, Lon: -111.98},
	"PHX": {IATA: "PHX", City: "Phoenix", Zone: "America/Phoenix", Lat: 33.43, Lon: -112.01},
	"LAS": {IATA: "LAS", City: "Las Vegas", Zone: "America/Los_Angeles", Lat: 36.08, Lon: -115.15},
	"LAX": {IATA: "LAX", City: "Los Angeles", Zone: "America/Los_Angeles", Lat: 33.94, Lon: -118.41},
	"SFO": {IATA: "SFO", City: "San Francisco", Zone: "America/Los_Angeles", Lat: 37.62, Lon: -122.38},
	"SAN": {IATA: "SAN", City: "San Diego", Zone: "America/Los_Angeles", Lat: 32.73, Lon: -117.19},
	"SEA": {IATA: "SEA", City: "Seattle", Zone: "America/Los_Angeles", Lat: 47.45, Lon: -122.31},
	"PDX": {IATA: "PDX", City: "Portland", Zone: "America/Los_Angeles", Lat: 45.59, Lon: -122.60},
	"HNL": {IATA: "HNL", City: "Honolulu", Zone: "Pacific/Honolulu", Lat: 21.32, Lon: -157.92},
	"ANC": {IATA: "ANC", City: "Anchorage", Zone: "America/Anchorage", Lat: 61.17, Lon: -149.98},

	// Canada
	"YYZ": {IATA: "YYZ", City: "Toronto", Zone: "America/Toronto", Lat: 43.68, Lon: -79.63},
	"YUL": {IATA: "YUL", City: "Montreal", Zone: "America/Toronto", Lat: 45.47, Lon: -73.74},
	"YVR": {IATA: "YVR", City: "Vancouver", Zone: "America/Vancouver", Lat: 49.19, Lon: -123.18},
	"YYC": {IATA: "YYC", City: "Calgary", Zone: "America/Edmonton", Lat: 51.13, Lon: -114.01},

	// Mexico and Central America
	"MEX": {IATA: "MEX", City: "Ciudad de Mexico", Zone: "America/Mexico_City", Lat: 19.44, Lon: -99.07},
	"CUN": {IATA: "CUN", City: "Cancun", Zone: "America/Cancun", Lat: 21.04, Lon: -86.87},
	"GDL": {IATA: "GDL", City: "Guadalajara", Zone: "America/Mexico_City", Lat: 20.52, Lon: -103.31},
	"MTY": {IATA: "MTY", City: "Monterrey", Zone: "America/Monterrey", Lat: 25.78, Lon: -100.11},
	"SJD": {IATA: "SJD", City: "Los Cabos", Zone: "America/Mazatlan", Lat: 23.15, Lon: -109.72},
	"PTY": {IATA: "PTY", City: "Panama", Zone: "America/Panama", Lat: 9.07, Lon: -79.38},
	"SJO": {IATA: "SJO", City: "San Jose", Zone: "America/Costa_Rica", Lat: 9.99, Lon: -84.21},
	"GUA": {IATA: "GUA", City: "Guatemala", Zone: "America/Guatemala", Lat: 14.58, Lon: -90.53},
	"SAL": {IATA: "SAL", City: "San Salvador", Zone: "America/El_Salvador", Lat: 13.44, Lon: -89.06},

	// Caribbean
	"HAV": {IATA: "HAV", City: "La Habana", Zone: "America/Havana", Lat: 22.99, Lon: -82.41},
	"PUJ": {IATA: "PUJ", City: "Punta Cana", Zone: "America/Santo_Domingo", Lat: 18.57, Lon: -68.36},
	"SDQ": {IATA: "SDQ", City: "Santo Domingo", Zone: "America/Santo_Domingo", Lat: 18.43, Lon: -69.67},
	"SJU": {IATA: "SJU", City: "San Juan", Zone: "America/Puerto_Rico", Lat: 18.44, Lon: -66.00},
	"MBJ": {IATA: "MBJ", City: "Montego Bay", Zone: "America/Jamaica", Lat: 18.50, Lon: -77.91},
	"AUA": {IATA: "AUA", City: "Oranjestad", Zone: "America/Aruba", Lat: 12.50, Lon: -70.02},
	"CUR": {IATA: "CUR", City: "Willemstad", Zone: "America/Curacao", Lat: 12.19, Lon: -68.96},

	// South America
	"EZE": {IATA: "EZE", City: "Buenos Aires", Zone: "America/Argentina/Buenos_Aires", Lat: -34.82, Lon: -58.54},
	"AEP": {IATA: "AEP", City: "Buenos Aires", Zone: "America/Argentina/Buenos_Aires", Lat: -34.56, Lon: -58.42},
	"COR": {IATA: "COR", City: "Cordoba", Zone: "America/Argentina/Cordoba", Lat: -31.32, Lon: -64.21},
	"MDZ": {IATA: "MDZ", City: "Mendoza", Zone: "America/Argentina/Mendoza", Lat: -32.83, Lon: -68.79},
	"BRC": {IATA: "BRC", City: "Bariloche", Zone: "America/Argentina/Salta", Lat: -41.15, Lon: -71.16},
	"USH": {IATA: "USH", City: "Ushuaia", Zone: "America/Argentina/Ushuaia", Lat: -54.84, Lon: -68.30},
	"IGR": {IATA: "IGR", City: "Puerto Iguazu", Zone: "America/Argentina/Cordoba", Lat: -25.74, Lon: -54.47},
	"MVD": {IATA: "MVD", City: "Montevideo", Zone: "America/Montevideo", Lat: -34.84, Lon: -56.03},
	"ASU": {IATA: "ASU", City: "Asuncion", Zone: "America/Asuncion", Lat: -25.24, Lon: -57.52},
	"GRU": {IATA: "GRU", City: "Sao Paulo", Zone: "America/Sao_Paulo", Lat: -23.44, Lon: -46.47},
	"CGH": {IATA: "CGH", City: "Sao Paulo", Zone: "America/Sao_Paulo", Lat: -23.63, Lon: -46.66},
	"GIG": {IATA: "GIG", City: "Rio de Janeiro", Zone: "America/Sao_Paulo", Lat: -22.81, Lon: -43.25},
	"BSB": {IATA: "BSB", City: "Brasilia", Zone: "America/Sao_Paulo", Lat: -15.87, Lon: -47.92},
	"SSA": {IATA: "SSA", City: "Salvador", Zone: "America/Bahia", Lat: -12.91, Lon: -38.32},
	"REC": {IATA: "REC", City: "Recife", Zone: "America/Recife", Lat: -8.13, Lon: -34.92},
	"FOR": {IATA: "FOR", City: "Fortaleza", Zone: "America/Fortaleza", Lat: -3.78, Lon: -38.53},
	"MAO": {IATA: "MAO", City: "Manaus", Zone: "America/Manaus", Lat: -3.04, Lon: -60.05},
	"SCL": {IATA: "SCL", City: "Santiago", Zone: "America/Santiago", Lat: -33.39, Lon: -70.79},
	"LIM": {IATA: "LIM", City: "Lima", Zone: "America/Lima", Lat: -12.02, Lon: -77.11},
	"CUZ": {IATA: "CUZ", City: "Cusco", Zone: "America/Lima", Lat: -13.54, Lon: -71.94},
	"BOG": {IATA: "BOG", City: "Bogota", Zone: "America/Bogota", Lat: 4.70, Lon: -74.15},
	"MDE": {IATA: "MDE", City: "Medellin", Zone: "America/Bogota", Lat: 6.16, Lon: -75.42},
	"CTG": {IATA: "CTG", City: "Cartagena", Zone: "America/Bogota", Lat: 10.44, Lon: -75.51},
	"UIO": {IATA: "UIO", City: "Quito", Zone: "America/Guayaquil", Lat: -0.13, Lon: -78.36},
	"GYE": {IATA: "GYE", City: "Guayaquil", Zone: "America/Guayaquil", Lat: -2.16, Lon: -79.88},
	"CCS": {IATA: "CCS", City: "Caracas", Zone: "America/Caracas", Lat: 10.60, Lon: -66.99},
	"VVI": {IATA: "VVI", City: "Santa Cruz", Zone: "America/La_Paz", Lat: -17.64, Lon: -63.14},
	"LPB": {IATA: "LPB", City: "La Paz", Zone: "America/La_Paz", Lat: -16.51, Lon: -68.19},

	// Europe
	"MAD": {IATA: "MAD", City: "Madrid", Zone: "Europe/Madrid", Lat: 40.47, Lon: -3.56},
	"BCN": {IATA: "BCN", City: "Barcelona", Zone: "Europe/Madrid", Lat: 41.30, Lon: 2.08},
	"AGP": {IATA: "AGP", City: "Malaga", Zone: "Europe/Madrid", Lat: 36.67, Lon: -4.50},
	"PMI": {IATA: "PMI", City: "Palma de Mallorca", Zone: "Europe/Madrid", Lat: 39.55, Lon: 2.74},
	"LIS": {IATA: "LIS", City: "Lisboa", Zone: "Europe/Lisbon", Lat: 38.77, Lon: -9.13},
	"OPO": {IATA: "OPO", City: "Porto", Zone: "Europe/Lisbon", Lat: 41.25, Lon: -8.68},
	"CDG": {IATA: "CDG", City: "Paris", Zone: "Europe/Paris", Lat: 49.01, Lon: 2.55},
	"ORY": {IATA: "ORY", City: "Paris", Zone: "Europe/Paris", Lat: 48.72, Lon: 2.38},
	"NCE": {IATA: "NCE", City: "Niza", Zone: "Europe/Paris", Lat: 43.66, Lon: 7.22},
	"LHR": {IATA: "LHR", City: "Londres", Zone: "Europe/London", Lat: 51.47, Lon: -0.45},
	"LGW": {IATA: "LGW", City: "Londres", Zone: "Europe/London", Lat: 51.15, Lon: -0.18},
	"STN": {IATA: "STN", City: "Londres", Zone: "Europe/London", Lat: 51.89, Lon: 0.24},
	"MAN": {IATA: "MAN", City: "Manchester", Zone: "Europe/London", Lat: 53.35, Lon: -2.27},
	"DUB": {IATA: "DUB", City: "Dublin", Zone: "Europe/Dublin", Lat: 53.43, Lon: -6.25},
	"AMS": {IATA: "AMS", City: "Amsterdam", Zone: "Europe/Amsterdam", Lat: 52.31, Lon: 4.76},
	"BRU": {IATA: "BRU", City: "Bruselas", Zone: "Europe/Brussels", Lat: 50.90, Lon: 4.48},
	"FRA": {IATA: "FRA", City: "Frankfurt", Zone: "Europe/Berlin", Lat: 50.04, Lon: 8.56},
	"MUC": {IATA: "MUC", City: "Munich", Zone: "Europe/Berlin", Lat: 48.35, Lon: 11.79},
	"BER": {IATA: "BER", City: "Berlin", Zone: "Europe/Berlin", Lat: 52.37, Lon: 13.50},
	"ZRH": {IATA: "ZRH", City: "Zurich", Zone: "Europe/Zurich", Lat: 47.46, Lon: 8.55},
	"GVA": {IATA: "GVA", City: "Ginebra", Zone: "Europe/Zurich", Lat: 46.24, Lon: 6.11},
	"VIE": {IATA: "VIE", City: "Viena", Zone: "Europe/Vienna", Lat: 48.11, Lon: 16.57},
	"FCO": {IATA: "FCO", City: "Roma", Zone: "Europe/Rome", Lat: 41.80, Lon: 12.25},
	"MXP": {IATA: "MXP", City: "Milan", Zone: "Europe/Rome", Lat: 45.63, Lon: 8.72},
	"VCE": {IATA: "VCE", City: "Venecia", Zone: "Europe/Rome", Lat: 45.51, Lon: 12.35},
	"NAP": {IATA: "NAP", City: "Napoles", Zone: "Europe/Rome", Lat: 40.88, Lon: 14.29},
	"ATH": {IATA: "ATH", City: "Atenas", Zone: "Europe/Athens", Lat: 37.94, Lon: 23.94},
	"IST": {IATA: "IST", City: "Estambul", Zone: "Europe/Istanbul", Lat: 41.28, Lon: 28.75},
	"CPH": {IATA: "CPH", City: "Copenhague", Zone: "Europe/Copenhagen", Lat: 55.62, Lon: 12.65},
	"ARN": {IATA: "ARN", City: "Estocolmo", Zone: "Europe/Stockholm", Lat: 59.65, Lon: 17.92},
	"OSL": {IATA: "OSL", City: "Oslo", Zone: "Europe/Oslo", Lat: 60.19, Lon: 11.10},
	"HEL": {IATA: "HEL", City: "Helsinki", Zone: "Europe/Helsinki", Lat: 60.32, Lon: 24.96},
	"WAW": {IATA: "WAW", City: "Varsovia", Zone: "Europe/Warsaw", Lat: 52.17, Lon: 20.97},
	"PRG": {IATA: "PRG", City: "Praga", Zone: "Europe/Prague", Lat: 50.10, Lon: 14.26},
	"BUD": {IATA: "BUD", City: "Budapest", Zone: "Europe/Budapest", Lat: 47.44, Lon: 19.26},
	"KEF": {IATA: "KEF", City: "Reikiavik", Zone: "Atlantic/Reykjavik", Lat: 63.99, Lon: -22.61},

	// Middle East and Africa
	"DXB": {IATA: "DXB", City: "Dubai", Zone: "Asia/Dubai", Lat: 25.25, Lon: 55.36},
	"AUH": {IATA: "AUH", City: "Abu Dhabi", Zone: "Asia/Dubai", Lat: 24.43, Lon: 54.65},
	"DOH": {IATA: "DOH", City: "Doha", Zone: "Asia/Qatar", Lat: 25.27, Lon: 51.61},
	"TLV": {IATA: "TLV", City: "Tel Aviv", Zone: "Asia/Jerusalem", Lat: 32.01, Lon: 34.89},
	"CAI": {IATA: "CAI", City: "El Cairo", Zone: "Africa/Cairo", Lat: 30.12, Lon: 31.41},
	"CMN": {IATA: "CMN", City: "Casablanca", Zone: "Africa/Casablanca", Lat: 33.37, Lon: -7.59},
	"JNB": {IATA: "JNB", City: "Johannesburgo", Zone: "Africa/Johannesburg", Lat: -26.14, Lon: 28.25},
	"CPT": {IATA: "CPT", City: "Ciudad del Cabo", Zone: "Africa/Johannesburg", Lat: -33.96, Lon: 18.60},
	"NBO": {IATA: "NBO", City: "Nairobi", Zone: "Africa/Nairobi", Lat: -1.32, Lon: 36.93},

	// Asia-Pacific
	"NRT": {IATA: "NRT", City: "Tokio", Zone: "Asia/Tokyo", Lat: 35.77, Lon: 140.39},
	"HND": {IATA: "HND", City: "Tokio", Zone: "Asia/Tokyo", Lat: 35.55, Lon: 139.78},
	"ICN": {IATA: "ICN", City: "Seul", Zone: "Asia/Seoul", Lat: 37.46, Lon: 126.44},
	"PEK": {IATA: "PEK", City: "Pekin", Zone: "Asia/Shanghai", Lat: 40.08, Lon: 116.58},
	"PVG": {IATA: "PVG", City: "Shanghai", Zone: "Asia/Shanghai", Lat: 31.14, Lon: 121.81},
	"HKG": {IATA: "HKG", City: "Hong Kong", Zone: "Asia/Hong_Kong", Lat: 22.31, Lon: 113.91},
	"TPE": {IATA: "TPE", City: "Taipei", Zone: "Asia/Taipei", Lat: 25.08, Lon: 121.23},
	"SIN": {IATA: "SIN", City: "Singapur", Zone: "Asia/Singapore", Lat: 1.36, Lon: 103.99},
	"BKK": {IATA: "BKK", City: "Bangkok", Zone: "Asia/Bangkok", Lat: 13.69, Lon: 100.75},
	"KUL": {IATA: "KUL", City: "Kuala Lumpur", Zone: "Asia/Kuala_Lumpur", Lat: 2.75, Lon: 101.71},
	"DEL": {IATA: "DEL", City: "Delhi", Zone: "Asia/Kolkata", Lat: 28.57, Lon: 77.10},
	"BOM": {IATA: "BOM", City: "Mumbai", Zone: "Asia/Kolkata", Lat: 19.09, Lon: 72.87},
	"SYD": {IATA: "SYD", City: "Sidney", Zone: "Australia/Sydney", Lat: -33.95, Lon: 151.18},
	"MEL": {IATA: "MEL", City: "Melbourne", Zone: "Australia/Melbourne", Lat: -37.67, Lon: 144.84},
	"BNE": {IATA: "BNE", City: "Brisbane", Zone: "Australia/Brisbane", Lat: -27.38, Lon: 153.12},
	"AKL": {IATA: "AKL", City: "Auckland", Zone: "Pacific/Auckland", Lat: -37.01, Lon: 174.79},
}
