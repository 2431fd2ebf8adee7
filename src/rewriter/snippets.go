package rewriter

// OptimizedClass marks images that fade in once loaded
const OptimizedClass = "optimized-image"

const (
	inlineStyleID  = "optimized-image-styles"
	inlineScriptID = "optimized-image-loader"

	// Markers used to detect that a stylesheet or script was already extended
	cssMarker = ".optimized-image"
	jsMarker  = `img[loading="lazy"]`
)

// LazyCSS fades optimized images in after they load
const LazyCSS = `
/* Lazy loading and optimized image styles */
.optimized-image {
    transition: opacity 0.3s ease;
}

.optimized-image[loading="lazy"] {
    opacity: 0;
}

.optimized-image[loading="lazy"].loaded {
    opacity: 1;
}

/* Smooth loading animation */
@keyframes fadeIn {
    from { opacity: 0; }
    to { opacity: 1; }
}

.optimized-image.loaded {
    animation: fadeIn 0.3s ease-in-out;
}
`

// LazyJS adds the loaded class to lazy images as they enter the viewport
const LazyJS = `
// Lazy loading for optimized images
document.addEventListener('DOMContentLoaded', function() {
    const images = document.querySelectorAll('img[loading="lazy"]');

    const imageObserver = new IntersectionObserver((entries, observer) => {
        entries.forEach(entry => {
            if (entry.isIntersecting) {
                const img = entry.target;
                img.addEventListener('load', () => {
                    img.classList.add('loaded');
                });
                observer.unobserve(img);
            }
        });
    });

    images.forEach(img => imageObserver.observe(img));
});
`

func inlineStyle() string {
	return `<style id="` + inlineStyleID + `">` + LazyCSS + "</style>\n"
}

func inlineScript() string {
	return `<script id="` + inlineScriptID + `">` + LazyJS + "</script>\n"
}
