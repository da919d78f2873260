package demosite

// Static page bodies for the demo target site. Element ids are stable
// on purpose: test sequences written against them keep working.

const loginPageTpl = `<!DOCTYPE html>
<html>
<head><title>Hashi Demo</title></head>
<body>
  <h1 id="title">Hashi Demo Login</h1>
  {{if .Error}}<div id="error" class="error">{{.Error}}</div>{{end}}
  <form id="login-form" method="post" action="/login">
    <label for="username">Username</label>
    <input type="text" id="username" name="username" value="">
    <label for="password">Password</label>
    <input type="password" id="password" name="password" value="">
    <button type="submit" id="submit">Sign in</button>
  </form>
  <a id="about-link" href="/about">About</a>
</body>
</html>`

const welcomePage = `<!DOCTYPE html>
<html>
<head><title>Welcome</title></head>
<body>
  <h1 id="greeting">Welcome back, admin</h1>
  <p id="message">You are signed in to the Hashi demo.</p>
  <a id="logout" href="/">Log out</a>
</body>
</html>`

const aboutPage = `<!DOCTYPE html>
<html>
<head><title>About</title></head>
<body>
  <h1 id="about-title">About this site</h1>
  <p id="about-text">A deterministic target for exercising the Hashi bridge.</p>
  <a id="home-link" href="/">Home</a>
</body>
</html>`
