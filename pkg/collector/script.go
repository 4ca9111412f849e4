package collector

// Script is installed with Page.addScriptToEvaluateOnNewDocument. It stubs
// the blocking dialogs and the extension messaging APIs missing from a
// headless browser, and reports every call through console.log using the
// Tag constants:
//
//	PostMessageObject     JSON({data, origin})
//	SendMessageObject     extensionId, JSON(message)
//	PortPostMessageObject extensionId, JSON(message)
//	ConnectObject         extensionId, JSON(connectInfo)
//	Error                 {location, errorMessage}
const Script = `(function () {
	var report = function (tag) {
		var args = Array.prototype.slice.call(arguments, 1);
		try {
			console.log.apply(console, [tag].concat(args));
		} catch (e) {
			console.error("` + TagError + `", {location: String(window.location.href), errorMessage: String(e)});
		}
	};
	var encode = function (value) {
		try {
			var s = JSON.stringify(value);
			return s === undefined ? "null" : s;
		} catch (e) {
			console.error("` + TagError + `", {location: String(window.location.href), errorMessage: String(e)});
			return "null";
		}
	};

	window.alert = function () { return true; };
	window.confirm = function () { return true; };
	window.prompt = function () { return ""; };

	var runtime = {
		id: undefined,
		lastError: undefined,
		sendMessage: function (extensionId, message, options, callback) {
			if (typeof extensionId !== "string") {
				message = extensionId;
				extensionId = "";
			}
			report("` + TagSendMessage + `", extensionId, encode(message));
			var cb = [options, callback].filter(function (f) { return typeof f === "function"; })[0];
			if (cb) {
				setTimeout(function () { cb(undefined); }, 0);
				return undefined;
			}
			return Promise.resolve(undefined);
		},
		connect: function (a, b) {
			var extensionId = typeof a === "string" ? a : "";
			var connectInfo = typeof a === "object" && a !== null ? a : (typeof b === "object" && b !== null ? b : {});
			report("` + TagConnect + `", extensionId, encode(connectInfo));
			var listeners = function () {
				return {addListener: function () {}, removeListener: function () {}, hasListener: function () { return false; }};
			};
			return {
				name: connectInfo && connectInfo.name ? String(connectInfo.name) : "",
				sender: undefined,
				onMessage: listeners(),
				onDisconnect: listeners(),
				disconnect: function () {},
				postMessage: function (message) {
					report("` + TagPortPostMessage + `", extensionId, encode(message));
				}
			};
		}
	};

	window.chrome = window.chrome || {};
	try { window.chrome.runtime = runtime; } catch (e) {}
	window.browser = window.browser || {};
	try { window.browser.runtime = runtime; } catch (e) {}

	window.addEventListener("message", function (event) {
		report("` + TagPostMessage + `", encode({data: event.data, origin: event.origin}));
	});
})();
`
