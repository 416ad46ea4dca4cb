package region

var cityIslands = map[string]string{
	"HONOLULU": Oahu, "WAIKIKI": Oahu, "AIEA": Oahu, "EWA BEACH": Oahu,
	"KAPOLEI": Oahu, "PEARL CITY": Oahu, "WAIPAHU": Oahu, "MILILANI": Oahu,
	"MILILANI TOWN": Oahu, "WAHIAWA": Oahu, "KANEOHE": Oahu, "KAILUA": Oahu,
	"HALEIWA": Oahu, "WAIANAE": Oahu, "MAKAHA": Oahu, "HAWAII KAI": Oahu,
	"HAUULA": Oahu, "WAIMANALO": Oahu, "LAIE": Oahu, "KAHUKU": Oahu,

	"LAHAINA": Maui, "KAHULUI": Maui, "WAILUKU": Maui, "KIHEI": Maui,
	"WAILEA": Maui, "MAKAWAO": Maui, "PAIA": Maui, "HANA": Maui,
	"KAANAPALI": Maui, "KAPALUA": Maui, "MAALAEA": Maui, "PUKALANI": Maui,
	"KULA": Maui, "HAIKU": Maui,

	"HILO": Hawaii, "KONA": Hawaii, "KAILUA-KONA": Hawaii, "KAILUA KONA": Hawaii,
	"WAIKOLOA": Hawaii, "KAMUELA": Hawaii, "CAPTAIN COOK": Hawaii, "VOLCANO": Hawaii,
	"PAHOA": Hawaii, "NAALEHU": Hawaii, "HONOKAA": Hawaii, "KAPAAU": Hawaii,
	"HOLUALOA": Hawaii, "KEAUHOU": Hawaii, "KEALAKEKUA": Hawaii, "PAHALA": Hawaii,

	// Waimea exists on both Kauai and the Big Island; the Kauai town wins.
	"LIHUE": Kauai, "KAPAA": Kauai, "POIPU": Kauai, "PRINCEVILLE": Kauai,
	"HANALEI": Kauai, "KOLOA": Kauai, "KALAHEO": Kauai, "HANAPEPE": Kauai,
	"WAIMEA": Kauai, "KEKAHA": Kauai, "KILAUEA": Kauai, "ANAHOLA": Kauai,
	"ELEELE": Kauai,

	"KAUNAKAKAI": Molokai, "HOOLEHUA": Molokai, "MAUNALOA": Molokai,

	"LANAI CITY": Lanai,
}

var zipIslands = map[string]string{}

func init() {
	add := func(island string, zips ...string) {
		for _, z := range zips {
			zipIslands[z] = island
		}
	}
	add(Oahu,
		"96701", "96706", "96707", "96709", "96712", "96717", "96730", "96731",
		"96734", "96744", "96762", "96782", "96786", "96789", "96791", "96792",
		"96797", "96801", "96802", "96803", "96804", "96805", "96806", "96807",
		"96808", "96809", "96810", "96811", "96812", "96813", "96814", "96815",
		"96816", "96817", "96818", "96819", "96820", "96821", "96822", "96823",
		"96824", "96825", "96826", "96828", "96830", "96836", "96837", "96838",
		"96839", "96840", "96841", "96843", "96844", "96846", "96847", "96848",
		"96849", "96850", "96853", "96854", "96857", "96858", "96859", "96860",
		"96861", "96863", "96898")
	add(Maui, "96708", "96713", "96732", "96753", "96761", "96768", "96779", "96790", "96793")
	add(Hawaii,
		"96704", "96710", "96719", "96720", "96721", "96725", "96726", "96727",
		"96728", "96737", "96738", "96740", "96743", "96749", "96750", "96755",
		"96760", "96764", "96771", "96776", "96777", "96778", "96780", "96781",
		"96783", "96785")
	add(Kauai,
		"96703", "96705", "96714", "96716", "96722", "96741", "96742", "96746",
		"96751", "96752", "96754", "96756", "96765", "96766", "96769", "96796")
	add(Molokai, "96729", "96748", "96757", "96770")
	add(Lanai, "96763")
}
