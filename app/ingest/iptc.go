package ingest

// SubjectCodes is the IPTC subject reference table used for hierarchy
// expansion, keyed by the 8-digit qcode. Missing entries are tolerated:
// expansion logs and skips levels it cannot name.
var SubjectCodes = map[string]string{
	"01000000": "arts, culture and entertainment",
	"01010000": "archaeology",
	"01016000": "literature",
	"01022000": "culture (general)",
	"02000000": "crime, law and justice",
	"02001000": "crime",
	"02003000": "police",
	"02008000": "trials",
	"03000000": "disaster and accident",
	"03010000": "transport accident",
	"04000000": "economy, business and finance",
	"04005000": "energy and resource",
	"04016000": "manufacturing and engineering",
	"04017000": "media",
	"05000000": "education",
	"06000000": "environmental issue",
	"06002000": "conservation",
	"07000000": "health",
	"07001000": "disease",
	"08000000": "human interest",
	"09000000": "labour",
	"10000000": "lifestyle and leisure",
	"11000000": "politics",
	"11002000": "diplomacy",
	"11003000": "elections",
	"11006000": "government",
	"12000000": "religion and belief",
	"13000000": "science and technology",
	"13010000": "scientific research",
	"14000000": "social issue",
	"15000000": "sport",
	"15005000": "athletics, track and field",
	"15007000": "baseball",
	"15008000": "basketball",
	"15017000": "cricket",
	"15019000": "cycling",
	"15028000": "golf",
	"15031000": "ice hockey",
	"15039000": "motor racing",
	"15039001": "Formula One",
	"15039002": "formula two",
	"15042000": "rowing",
	"15047000": "rugby union",
	"15054000": "soccer",
	"15062000": "tennis",
	"16000000": "unrest, conflicts and war",
	"16003000": "civil unrest",
	"16009000": "war",
	"17000000": "weather",
	"17001000": "forecast",
}
