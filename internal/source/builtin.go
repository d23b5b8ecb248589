package source

func init() {
	for _, src := range []Source{
		{
			Name:        "ris",
			BaseURL:     "https://data.ris.ripe.net",
			Description: "RIPE NCC Routing Information Service MRT dumps",
			Compression: CompressionAuto,
		},
		{
			Name:        "routeviews",
			BaseURL:     "http://archive.routeviews.org",
			Description: "University of Oregon RouteViews MRT archive",
			Compression: CompressionAuto,
		},
		{
			Name:        "atlas",
			BaseURL:     "https://atlas.ripe.net",
			Description: "RIPE Atlas measurement API",
			Compression: CompressionNone,
		},
		{
			Name:        "ip2asn",
			BaseURL:     "https://iptoasn.com/data",
			Description: "IP to ASN mapping tables",
			Compression: CompressionGzip,
		},
	} {
		src.Builtin = true
		MustRegister(src)
	}
}
