package api

import "html/template"

var containersPage = template.Must(template.New("containers").Parse(containersHTML))

const containersHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<meta name="csrf-token" content="{{.CSRFToken}}">
<title>Containers - SpanFreight Tracking</title>
<style>
*,*::before,*::after{box-sizing:border-box;margin:0;padding:0}
:root{
  --bg:#0f1117;--bg-card:#161b22;--bg-card-hover:#1c2129;--bg-input:#0d1117;
  --border:#30363d;--text:#e1e4e8;--text-muted:#8b949e;--text-dim:#484f58;
  --primary:#58a6ff;--primary-hover:#79b8ff;
  --green:#3fb950;--red:#f85149;--yellow:#d29922;--orange:#db6d28;
  --radius:8px;--radius-sm:4px;
}
body{font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",Helvetica,Arial,sans-serif;background:var(--bg);color:var(--text);line-height:1.5;min-height:100vh}
a{color:var(--primary);text-decoration:none}
button{cursor:pointer;font-family:inherit;font-size:inherit}
.container{max-width:1400px;margin:0 auto;padding:0 24px 96px}
header{background:var(--bg-card);border-bottom:1px solid var(--border);padding:12px 24px;position:sticky;top:0;z-index:100}
.header-inner{max-width:1400px;margin:0 auto;display:flex;align-items:center;gap:16px}
.header-title{font-size:20px;font-weight:700}
.header-badges{margin-left:auto;color:var(--text-muted);font-size:13px}
h2{font-size:16px;margin:24px 0 12px}
.btn{display:inline-flex;align-items:center;gap:6px;padding:8px 16px;border-radius:var(--radius);font-size:14px;font-weight:500;border:1px solid var(--border);background:var(--bg-card);color:var(--text);transition:.15s}
.btn:hover{background:var(--bg-card-hover)}
.btn:disabled{opacity:.5;cursor:not-allowed}
.btn-danger{color:var(--red);border-color:var(--red)}
.btn-danger:hover{background:rgba(248,81,73,.15)}
.btn-sm{padding:4px 10px;font-size:12px}
.table-wrap{background:var(--bg-card);border:1px solid var(--border);border-radius:var(--radius);overflow:auto}
table{width:100%;border-collapse:collapse;font-size:14px}
th{text-align:left;padding:12px 16px;font-weight:600;color:var(--text-muted);border-bottom:1px solid var(--border);white-space:nowrap;font-size:12px;text-transform:uppercase;letter-spacing:.5px}
td{padding:10px 16px;border-bottom:1px solid var(--border);white-space:nowrap}
tbody tr:last-child td{border-bottom:none}
td.cb-cell,th.cb-cell{width:40px;text-align:center;padding:10px 8px}
td.cb-cell input,th.cb-cell input{width:16px;height:16px;cursor:pointer;accent-color:var(--primary)}
td.empty{text-align:center;color:var(--text-muted);padding:32px}
.status-badge{display:inline-flex;padding:2px 8px;border-radius:12px;font-size:12px;font-weight:600}
.status-loaded{color:var(--primary);background:rgba(88,166,255,.12)}
.status-discharged{color:var(--orange);background:rgba(219,109,40,.12)}
.status-emptied{color:var(--yellow);background:rgba(210,153,34,.12)}
.status-in_yard{color:var(--green);background:rgba(63,185,80,.12)}
.status-none{color:var(--text-dim);background:rgba(72,79,88,.2)}
form.inline{display:inline}
.bulk-bar{position:fixed;bottom:0;left:0;right:0;background:var(--bg-card);border-top:1px solid var(--border);padding:12px 24px;display:flex;align-items:center;gap:12px;z-index:150;box-shadow:0 -2px 12px rgba(0,0,0,.2)}
.bulk-bar[hidden]{display:none}
.bulk-count{font-size:14px;font-weight:600}
.bulk-spacer{flex:1}
</style>
</head>
<body>
<header>
  <div class="header-inner">
    <span class="header-title">Container Tracking</span>
    <span class="header-badges">{{len .Rows}} containers</span>
  </div>
</header>

<div class="container">
  <h2>Containers</h2>
  <div class="table-wrap">
    <table>
      <thead>
        <tr>
          <th class="cb-cell"><input type="checkbox" id="select-all-containers" aria-label="Select all"></th>
          <th>Container #</th>
          <th>Type</th>
          <th>Status</th>
          <th>Location</th>
          <th>Last Updated</th>
          <th></th>
        </tr>
      </thead>
      <tbody>
      {{- range .Rows}}
        <tr>
          <td class="cb-cell"><input type="checkbox" class="container-checkbox" value="{{.ID}}" aria-label="Select {{.Number}}"></td>
          <td><a href="/api/containers/{{.ID}}">{{.Number}}</a></td>
          <td>{{.Type}}</td>
          <td><span class="status-badge status-{{.StatusClass}}">{{.Status}}</span></td>
          <td>{{.Location}}</td>
          <td>{{.LastUpdated}}</td>
          <td>
            <form class="inline" method="post" action="/containers/{{.ID}}/delete" onsubmit="return confirm('Delete container {{.Number}}? This action cannot be undone.');">
              <input type="hidden" name="csrf_token" value="{{$.CSRFToken}}">
              <button type="submit" class="btn btn-sm btn-danger">Delete</button>
            </form>
          </td>
        </tr>
      {{- else}}
        <tr><td class="empty" colspan="7">No containers found.</td></tr>
      {{- end}}
      </tbody>
    </table>
  </div>
</div>

<div class="bulk-bar" id="bulk-action-controls" hidden>
  <span class="bulk-count"><span id="selected-count">0</span> selected</span>
  <span class="bulk-spacer"></span>
  <button type="button" class="btn btn-sm btn-danger" id="bulk-delete-button">Delete Selected</button>
</div>

<script>
(function() {
  'use strict';

  var TRIGGER_LABEL = 'Delete Selected';
  var DELETING_LABEL = 'Deleting...';
  var REQUEST_TIMEOUT_MS = 30000;

  var g = function(id) { return document.getElementById(id); };
  var elSelectAll = g('select-all-containers');
  var elBar = g('bulk-action-controls');
  var elCount = g('selected-count');
  var elTrigger = g('bulk-delete-button');

  function boxes() {
    return document.querySelectorAll('.container-checkbox');
  }

  // --- Selection ---
  var selection = {
    subscribers: [],
    snapshot: function() {
      var list = boxes();
      var count = 0;
      for (var i = 0; i < list.length; i++) {
        if (list[i].checked) count++;
      }
      return { count: count, barVisible: count > 0, allSelected: count > 0 && count === list.length };
    },
    itemToggled: function() {
      var snap = this.snapshot();
      for (var i = 0; i < this.subscribers.length; i++) this.subscribers[i](snap);
      return snap;
    },
    selectAll: function(checked) {
      var list = boxes();
      for (var i = 0; i < list.length; i++) list[i].checked = checked;
      return this.itemToggled();
    },
    selectedIds: function() {
      var list = boxes();
      var ids = [];
      var seen = {};
      for (var i = 0; i < list.length; i++) {
        if (!list[i].checked) continue;
        var raw = list[i].value;
        if (!/^\s*\d+\s*$/.test(raw) || parseInt(raw, 10) <= 0) {
          console.warn('skipping malformed container id', raw);
          continue;
        }
        var id = parseInt(raw, 10);
        if (seen[id]) continue;
        seen[id] = true;
        ids.push(id);
      }
      return ids;
    },
    subscribe: function(fn) {
      this.subscribers.push(fn);
      fn(this.snapshot());
    }
  };

  selection.subscribe(function(snap) {
    elBar.hidden = !snap.barVisible;
    elCount.textContent = snap.count;
    if (elSelectAll) elSelectAll.checked = snap.allSelected;
  });

  // --- Trigger ---
  function setTrigger(label, enabled) {
    elTrigger.textContent = label;
    elTrigger.disabled = !enabled;
  }

  function csrfToken() {
    var meta = document.querySelector('meta[name="csrf-token"]');
    return meta ? meta.getAttribute('content') : '';
  }

  function plural(n) {
    return n === 1 ? '1 container' : n + ' containers';
  }

  function withFailures(msg, failed) {
    if (!failed || failed.length === 0) return msg;
    var parts = failed.map(function(f) { return f.reason ? f.id + ' (' + f.reason + ')' : String(f.id); });
    return msg + ' Could not delete ' + plural(failed.length) + ': ' + parts.join(', ') + '.';
  }

  // --- Bulk delete ---
  var inFlight = false;

  function performDelete(ids) {
    if (inFlight) return Promise.resolve('busy');
    inFlight = true;
    setTrigger(DELETING_LABEL, false);

    var headers = { 'Content-Type': 'application/json' };
    var token = csrfToken();
    if (token) headers['X-CSRFToken'] = token;

    var ctrl = new AbortController();
    var timer = setTimeout(function() { ctrl.abort(); }, REQUEST_TIMEOUT_MS);

    return fetch('/containers/bulk-delete', {
      method: 'POST',
      headers: headers,
      body: JSON.stringify({ container_ids: ids }),
      signal: ctrl.signal
    }).then(function(resp) {
      if (!resp.ok) throw new Error('HTTP ' + resp.status);
      return resp.json();
    }).then(function(data) {
      if (typeof data.success_count !== 'number') throw new Error('malformed response');
      if (data.success_count > 0) {
        alert(withFailures('Successfully deleted ' + plural(data.success_count) + '.', data.failed));
        window.location.reload();
        return 'deleted';
      }
      alert(withFailures('No containers were deleted.', data.failed));
      setTrigger(TRIGGER_LABEL, true);
      return 'nothing_deleted';
    }).catch(function(err) {
      console.error('bulk delete failed', err);
      alert('An error occurred while deleting containers.');
      setTrigger(TRIGGER_LABEL, true);
      return 'failed';
    }).then(function(outcome) {
      clearTimeout(timer);
      inFlight = false;
      return outcome;
    });
  }

  function confirmAndDelete() {
    if (inFlight) return;
    var ids = selection.selectedIds();
    if (ids.length === 0) {
      alert('Please select at least one container to delete.');
      return;
    }
    if (!confirm('Are you sure you want to delete ' + plural(ids.length) + '? This action cannot be undone.')) return;
    performDelete(ids);
  }

  // --- Wiring ---
  if (elSelectAll) {
    elSelectAll.addEventListener('change', function() { selection.selectAll(this.checked); });
  }
  var list = boxes();
  for (var i = 0; i < list.length; i++) {
    list[i].addEventListener('change', function() { selection.itemToggled(); });
  }
  elTrigger.addEventListener('click', confirmAndDelete);
  setTrigger(TRIGGER_LABEL, true);
})();
</script>
</body>
</html>
`
