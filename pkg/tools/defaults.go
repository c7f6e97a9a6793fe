package tools

type Config struct {
	Enabled      []string
	GeocodingURL string
	ForecastURL  string
	SMS          SMSConfig
}

// NewDefaultRegistry registers the built-in tools named in cfg.Enabled
// (all of them when empty). send_sms is registered only with credentials.
func NewDefaultRegistry(cfg Config) *Registry {
	reg := NewRegistry()
	enabled := func(name string) bool {
		if len(cfg.Enabled) == 0 {
			return true
		}
		for _, n := range cfg.Enabled {
			if n == name {
				return true
			}
		}
		return false
	}
	if enabled("get_monthly_sales") {
		sales := NewSalesSimulator()
		reg.Register(sales.Tool(), sales.Handle)
	}
	if enabled("get_weather") {
		weather := NewWeatherClient(cfg.GeocodingURL, cfg.ForecastURL)
		reg.Register(weather.Tool(), weather.Handle)
	}
	if enabled("send_sms") && cfg.SMS.Enabled() {
		sms := NewSMSSender(cfg.SMS)
		reg.Register(sms.Tool(), sms.Handle)
	}
	return reg
}
