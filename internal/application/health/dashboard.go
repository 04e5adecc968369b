package health

import (
	"encoding/json"
	"fmt"
	"html"
	"sort"
	"strings"
)

// RenderDashboardHTML returns the status page served at GET /. The page polls
// /health/json a few times and then stops.
func RenderDashboardHTML(health CollectResult) string {
	b, _ := json.Marshal(health)
	jsonStr := string(b)
	// Escape for embedding in a JS template literal.
	jsonStr = strings.ReplaceAll(jsonStr, "\\", "\\\\")
	jsonStr = strings.ReplaceAll(jsonStr, "`", "\\`")
	jsonStr = strings.ReplaceAll(jsonStr, "$", "\\$")

	headline := "All Systems Operational"
	if health.Status != "ok" {
		headline = "System Issues Detected"
	}

	names := make([]string, 0, len(health.Dependencies))
	for name := range health.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	var deps strings.Builder
	for _, name := range names {
		d := health.Dependencies[name]
		class := "err"
		if d.Status == "connected" || d.Status == "reachable" {
			class = "ok"
		}
		ping := "--"
		if d.PingMs != nil {
			ping = fmt.Sprint(*d.PingMs)
		}
		fmt.Fprintf(&deps, `<div class="row"><span>%s</span><span id="pill-%s" class="pill %s">%s ms</span></div>`,
			html.EscapeString(name), html.EscapeString(name), class, ping)
	}

	lastReq := "-"
	if m, ok := health.Traffic.LastRequest.(map[string]interface{}); ok {
		method, _ := m["method"].(string)
		path, _ := m["path"].(string)
		lastReq = html.EscapeString(method + " " + path)
	}

	return `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Flexile · API Status</title>
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <style>
    :root { --ink: #1d1e17; --blue: #2563eb; --bg: #f7f7f5; --muted: #6b7280; }
    body { background: var(--bg); color: var(--ink); font-family: -apple-system, "Segoe UI", sans-serif; margin: 0; display: flex; justify-content: center; padding: 48px 16px; }
    .container { width: 100%; max-width: 960px; }
    h1 { font-size: 40px; letter-spacing: -1px; margin: 0 0 8px; }
    .subtext { color: var(--muted); margin: 0 0 32px; }
    .card { background: white; border-radius: 16px; border: 1px solid #e5e7eb; display: grid; grid-template-columns: repeat(3, 1fr); }
    .col { padding: 32px; border-right: 1px solid #f3f4f6; }
    .col:last-child { border-right: none; }
    .label { text-transform: uppercase; font-size: 11px; font-weight: 700; letter-spacing: 2px; color: var(--muted); margin-bottom: 16px; }
    .big { font-size: 36px; font-weight: 800; margin-bottom: 8px; }
    .row { display: flex; justify-content: space-between; padding: 6px 0; font-size: 14px; }
    .pill { padding: 2px 10px; border-radius: 8px; font-size: 12px; font-weight: 700; }
    .ok { background: #dcfce7; color: #166534; }
    .err { background: #fee2e2; color: #b91c1c; }
    .footer { margin-top: 16px; font-family: monospace; font-size: 13px; color: var(--muted); }
    @media (max-width: 800px) { .card { grid-template-columns: 1fr; } .col { border-right: none; } }
  </style>
</head>
<body>
  <div class="container">
    <h1 id="headline">` + headline + `</h1>
    <p class="subtext">Flexile payments API · dependencies and traffic</p>
    <div class="card">
      <div class="col">
        <div class="label">Traffic</div>
        <div class="big" id="total-req">` + fmt.Sprint(health.Traffic.TotalRequests) + `</div>
        <div class="row"><span>Successful</span><span id="success-count">` + fmt.Sprint(health.Traffic.SuccessCount) + `</span></div>
        <div class="row"><span>Failed</span><span id="failed-count">` + fmt.Sprint(health.Traffic.FailedCount) + `</span></div>
        <div class="row"><span>Success Rate</span><span id="success-rate">` + health.Traffic.SuccessRate + `%</span></div>
        <div class="row"><span>Avg Latency</span><span id="avg-time">` + health.Traffic.AvgResponseTime + `ms</span></div>
      </div>
      <div class="col">
        <div class="label">Runtime</div>
        <div class="big" id="uptime">` + fmt.Sprint(health.Runtime.UptimeSeconds) + `s</div>
        <div class="row"><span>Heap Used</span><span id="mem-heap">` + fmt.Sprint(health.Runtime.Memory.HeapUsed) + ` MB</span></div>
        <div class="row"><span>Goroutines</span><span id="goroutines">` + fmt.Sprint(health.Runtime.Goroutines) + `</span></div>
        <div class="row"><span>Go</span><span>` + health.Runtime.GoVersion + `</span></div>
      </div>
      <div class="col">
        <div class="label">Dependencies</div>
        ` + deps.String() + `
      </div>
    </div>
    <div class="footer">Last inbound: <span id="last-req">` + lastReq + `</span></div>
  </div>
  <script>
    let left = 3;
    const setText = (id, v) => { const el = document.getElementById(id); if (el) el.innerText = v; };
    const updateUI = (d) => {
      setText('headline', d.status === 'ok' ? 'All Systems Operational' : 'System Issues Detected');
      setText('total-req', d.traffic.totalRequests);
      setText('success-count', d.traffic.successCount);
      setText('failed-count', d.traffic.failedCount);
      setText('success-rate', d.traffic.successRate + '%');
      setText('avg-time', d.traffic.avgResponseTime + 'ms');
      setText('uptime', d.runtime.uptimeSeconds + 's');
      setText('mem-heap', d.runtime.memory.heapUsed + ' MB');
      setText('goroutines', d.runtime.goroutines);
      for (const [name, dep] of Object.entries(d.dependencies)) {
        const pill = document.getElementById('pill-' + name);
        if (!pill) continue;
        const ok = dep.status === 'connected' || dep.status === 'reachable';
        pill.className = 'pill ' + (ok ? 'ok' : 'err');
        pill.innerText = (dep.pingMs != null ? dep.pingMs : '--') + ' ms';
      }
    };
    async function tick() { if (left <= 0) return; left--; try { const r = await fetch('/health/json'); updateUI(await r.json()); } catch (e) {} }
    updateUI(JSON.parse(` + "`" + jsonStr + "`" + `));
    setInterval(tick, 10000);
  </script>
</body>
</html>`
}
