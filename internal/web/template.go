package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/sonar-sensor/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"cm": func(v float64) string {
		return fmt.Sprintf("%.2f cm", v)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Sonar Sensor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.distance { font-size: 1.3em; font-weight: bold; }
.invalid { color: orange; }
.pending { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Sonar Sensor{{if .Config.WSBroker}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

<h2>Distance</h2>
<table>
<tr><th>Last reading</th><td id="distance" class="{{if not .HaveReading}}pending{{else if not .Last.Valid}}invalid{{else}}distance{{end}}">
{{- if not .HaveReading}}waiting for first burst{{else if not .Last.Valid}}NO READING{{else}}{{cm .Last.Distance}}{{end -}}
</td></tr>
{{if .HaveReading}}<tr><th>Measured at</th><td>{{.Last.Time.UTC.Format "15:04:05.000"}}</td></tr>
<tr><th>Valid samples</th><td id="valid-samples">{{.Last.ValidSamples}}/{{.Last.Pulses}}</td></tr>{{end}}
<tr><th>Sampling</th><td>{{if .Sampling}}burst in flight{{else}}idle{{end}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}} — {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Burst Counts</h2>
<table>
<tr><th>Completed</th><td>{{.Counts.Bursts}}</td></tr>
<tr><th>No reading</th><td>{{.Counts.NoReading}}</td></tr>
<tr><th>Rejected echoes</th><td>{{.Counts.Rejected}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Inactivity</th><td>{{.Config.InactivityMs}}ms</td></tr>
<tr><th>Samples per burst</th><td>{{.Config.Samples}}</td></tr>
<tr><th>Max echo</th><td>{{.Config.MaxEchoMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
{{if .Config.WSBroker}}
<script src="/mqtt.min.js"></script>
<script>
(function() {
  var broker = "{{.Config.WSBroker}}";
  var topic = "robot/sonar/sensor/readings";
  var dot = document.getElementById("live-dot");
  var distEl = document.getElementById("distance");
  var samplesEl = document.getElementById("valid-samples");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  var client = mqtt.connect(broker, { reconnectPeriod: 5000 });

  client.on("connect", function() {
    setDot("ok", "live");
    client.subscribe(topic);
  });

  client.on("reconnect", function() {
    setDot("pending", "reconnecting");
  });

  client.on("offline", function() {
    setDot("err", "offline");
  });

  client.on("error", function() {
    setDot("err", "error");
  });

  client.on("message", function(t, payload) {
    try {
      var msg = JSON.parse(payload.toString());
      if (msg.sonar) {
        if (msg.sonar.valid) {
          distEl.textContent = msg.sonar.distance_cm.toFixed(2) + " cm";
          distEl.className = "distance";
        } else {
          distEl.textContent = "NO READING";
          distEl.className = "invalid";
        }
        if (samplesEl) {
          samplesEl.textContent = msg.sonar.valid_samples + "/" + msg.sonar.pulses;
        }
      }
    } catch (e) {}
  });
})();
</script>
{{end}}
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
