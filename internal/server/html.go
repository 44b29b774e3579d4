package server

// Static terminal pages for the OAuth redirect. The browser tab is a dead end
// after the callback; the user is told to return to their MCP client.

const authSuccessHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Authorization complete</title>
  <style>
    body { font-family: -apple-system, system-ui, sans-serif; display: flex; justify-content: center; align-items: center; height: 100vh; margin: 0; background: #f5f5f5; }
    .card { background: white; border-radius: 8px; padding: 2.5rem 3rem; box-shadow: 0 2px 8px rgba(0,0,0,0.1); text-align: center; }
    h1 { color: #1a7f37; font-size: 1.4rem; margin: 0 0 0.5rem; }
    p { color: #555; margin: 0; }
  </style>
</head>
<body>
  <div class="card">
    <h1>Authorization complete</h1>
    <p>You can close this tab and return to your MCP client.</p>
  </div>
</body>
</html>`

const authErrorHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Authorization failed</title>
  <style>
    body { font-family: -apple-system, system-ui, sans-serif; display: flex; justify-content: center; align-items: center; height: 100vh; margin: 0; background: #f5f5f5; }
    .card { background: white; border-radius: 8px; padding: 2.5rem 3rem; box-shadow: 0 2px 8px rgba(0,0,0,0.1); text-align: center; }
    h1 { color: #cf222e; font-size: 1.4rem; margin: 0 0 0.5rem; }
    p { color: #555; margin: 0; }
  </style>
</head>
<body>
  <div class="card">
    <h1>Authorization failed</h1>
    <p>The authorization was not completed. Close this tab and try again from your MCP client.</p>
  </div>
</body>
</html>`
