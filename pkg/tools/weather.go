package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/harunnryd/asisten/pkg/llm"
)

const (
	DefaultGeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"
	DefaultForecastURL  = "https://api.open-meteo.com/v1/forecast"
)

type weatherArgs struct {
	Location string `json:"location" jsonschema_description:"Nombre del lugar o ciudad. Puede incluir el país, por ejemplo 'Corrientes Argentina' o 'Madrid España'."`
}

// WeatherClient looks up current conditions through Open-Meteo.
type WeatherClient struct {
	GeocodingURL string
	ForecastURL  string
	Client       *http.Client
}

func NewWeatherClient(geocodingURL, forecastURL string) *WeatherClient {
	if geocodingURL == "" {
		geocodingURL = DefaultGeocodingURL
	}
	if forecastURL == "" {
		forecastURL = DefaultForecastURL
	}
	return &WeatherClient{
		GeocodingURL: geocodingURL,
		ForecastURL:  forecastURL,
		Client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (w *WeatherClient) Tool() llm.Tool {
	return llm.Tool{
		Name: "get_weather",
		Description: "Obtiene el pronóstico del tiempo y la temperatura actual para un lugar. " +
			"Ejemplo: 'Corrientes Argentina', 'Buenos Aires', 'Madrid España'.",
		Schema: SchemaFor(&weatherArgs{}),
	}
}

type geocodingResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Country   string  `json:"country"`
		Admin1    string  `json:"admin1"`
	} `json:"results"`
}

type forecastResponse struct {
	Current *struct {
		Temperature         float64  `json:"temperature_2m"`
		ApparentTemperature float64  `json:"apparent_temperature"`
		RelativeHumidity    int      `json:"relative_humidity_2m"`
		WeatherCode         int      `json:"weather_code"`
		WindSpeed           float64  `json:"wind_speed_10m"`
		WindDirection       *float64 `json:"wind_direction_10m"`
		PressureMSL         *float64 `json:"pressure_msl"`
	} `json:"current"`
	Daily *struct {
		TemperatureMax []float64 `json:"temperature_2m_max"`
		TemperatureMin []float64 `json:"temperature_2m_min"`
	} `json:"daily"`
}

func (w *WeatherClient) Handle(ctx context.Context, args map[string]any) (string, error) {
	var in weatherArgs
	if err := decodeArgs(args, &in); err != nil {
		return "", err
	}
	location := strings.TrimSpace(in.Location)
	if location == "" {
		return "", fmt.Errorf("location is required")
	}

	q := url.Values{}
	q.Set("name", location)
	q.Set("count", "1")
	q.Set("language", "es")
	q.Set("format", "json")
	var geo geocodingResponse
	if err := w.getJSON(ctx, w.GeocodingURL+"?"+q.Encode(), &geo); err != nil {
		return "", fmt.Errorf("buscar el lugar %q: %w", location, err)
	}
	if len(geo.Results) == 0 {
		return fmt.Sprintf("No se pudo encontrar el lugar '%s'. Verifica el nombre e intenta incluir el país, por ejemplo 'Corrientes Argentina'.", location), nil
	}
	place := geo.Results[0]

	q = url.Values{}
	q.Set("latitude", strconv.FormatFloat(place.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(place.Longitude, 'f', -1, 64))
	q.Set("current", "temperature_2m,relative_humidity_2m,apparent_temperature,weather_code,wind_speed_10m,wind_direction_10m,pressure_msl")
	q.Set("daily", "temperature_2m_max,temperature_2m_min,weather_code")
	q.Set("timezone", "auto")
	q.Set("forecast_days", "1")
	var fc forecastResponse
	if err := w.getJSON(ctx, w.ForecastURL+"?"+q.Encode(), &fc); err != nil {
		return "", fmt.Errorf("obtener el clima: %w", err)
	}
	if fc.Current == nil {
		return "", fmt.Errorf("respuesta del clima sin datos actuales")
	}

	var b strings.Builder
	b.WriteString("Clima en " + place.Name)
	if place.Admin1 != "" {
		b.WriteString(", " + place.Admin1)
	}
	if place.Country != "" {
		b.WriteString(", " + place.Country)
	}
	b.WriteString("\n")
	cur := fc.Current
	fmt.Fprintf(&b, "Temperatura actual: %.1f°C\n", cur.Temperature)
	fmt.Fprintf(&b, "Sensación térmica: %.1f°C\n", cur.ApparentTemperature)
	if fc.Daily != nil && len(fc.Daily.TemperatureMax) > 0 {
		fmt.Fprintf(&b, "Temperatura máxima: %.1f°C\n", fc.Daily.TemperatureMax[0])
	}
	if fc.Daily != nil && len(fc.Daily.TemperatureMin) > 0 {
		fmt.Fprintf(&b, "Temperatura mínima: %.1f°C\n", fc.Daily.TemperatureMin[0])
	}
	fmt.Fprintf(&b, "Humedad: %d%%\n", cur.RelativeHumidity)
	fmt.Fprintf(&b, "Viento: %.1f km/h", cur.WindSpeed)
	if cur.WindDirection != nil {
		fmt.Fprintf(&b, " (%s)", WindDirection(*cur.WindDirection))
	}
	fmt.Fprintf(&b, "\nCondiciones: %s\n", WeatherDescription(cur.WeatherCode))
	if cur.PressureMSL != nil {
		fmt.Fprintf(&b, "Presión atmosférica: %.1f hPa\n", *cur.PressureMSL)
	}
	return b.String(), nil
}

func (w *WeatherClient) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var wmoDescriptions = map[int]string{
	0: "Cielo despejado", 1: "Mayormente despejado", 2: "Parcialmente nublado", 3: "Nublado",
	45: "Niebla", 48: "Niebla con escarcha",
	51: "Llovizna ligera", 53: "Llovizna moderada", 55: "Llovizna densa",
	56: "Llovizna helada ligera", 57: "Llovizna helada densa",
	61: "Lluvia ligera", 63: "Lluvia moderada", 65: "Lluvia intensa",
	66: "Lluvia helada ligera", 67: "Lluvia helada intensa",
	71: "Nieve ligera", 73: "Nieve moderada", 75: "Nieve intensa", 77: "Granizo",
	80: "Chubascos ligeros", 81: "Chubascos moderados", 82: "Chubascos intensos",
	85: "Chubascos de nieve ligeros", 86: "Chubascos de nieve intensos",
	95: "Tormenta", 96: "Tormenta con granizo ligero", 99: "Tormenta con granizo intenso",
}

// WeatherDescription maps a WMO weather code to Spanish text.
func WeatherDescription(code int) string {
	if d, ok := wmoDescriptions[code]; ok {
		return d
	}
	return "Condiciones desconocidas"
}

var compass = [...]string{"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE", "S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW"}

// WindDirection maps degrees to a 16-point compass label.
func WindDirection(degrees float64) string {
	idx := int(math.Round(degrees/22.5)) % 16
	if idx < 0 {
		idx += 16
	}
	return compass[idx]
}
